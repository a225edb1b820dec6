package summarizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fachebot/topic-digest-bot/internal/logger"
)

const (
	maxKeyTerms   = 10
	minTermLength = 6
)

var stopwords = map[string]bool{
	"about": true, "actually": true, "anyone": true, "anything": true,
	"because": true, "before": true, "everyone": true, "everything": true,
	"little": true, "people": true, "please": true, "pretty": true,
	"really": true, "should": true, "someone": true, "something": true,
	"thanks": true, "though": true, "through": true, "without": true,
}

type participant struct {
	name  string
	count int
}

// SummarizeLocally 在远程总结不可用时，基于统计信息生成确定性的简易总结
// 每行格式为 "发送者: 内容"，不会失败
func SummarizeLocally(lines []string, groupTitle string) (summary string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Summarizer] 本地总结 %s 出错: %v", groupTitle, r)
			summary = fmt.Sprintf("Summary for %s\n%d messages collected (detailed summary unavailable)", groupTitle, len(lines))
		}
	}()

	var participants []*participant
	index := make(map[string]*participant)
	var terms []string
	seenTerms := make(map[string]bool)

	for _, line := range lines {
		sender, text, ok := strings.Cut(line, ": ")
		if !ok {
			sender, text = "Unknown", line
		}
		sender = strings.TrimSpace(sender)
		if sender == "" {
			sender = "Unknown"
		}

		p, exists := index[sender]
		if !exists {
			p = &participant{name: sender}
			index[sender] = p
			participants = append(participants, p)
		}
		p.count++

		if len(terms) >= maxKeyTerms {
			continue
		}
		for _, token := range tokenize(text) {
			if len(terms) >= maxKeyTerms {
				break
			}
			if utf8.RuneCountInString(token) < minTermLength || stopwords[token] || seenTerms[token] {
				continue
			}
			seenTerms[token] = true
			terms = append(terms, token)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 Quick summary for %s (AI summary unavailable)\n", groupTitle))

	sb.WriteString("\nParticipants:\n")
	for _, p := range participants {
		sb.WriteString(fmt.Sprintf("- %s (%d)\n", p.name, p.count))
	}

	if len(terms) > 0 {
		sb.WriteString("\nKey terms: ")
		sb.WriteString(strings.Join(terms, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\nTotal messages: %d\n", len(lines)))
	sb.WriteString(fmt.Sprintf("Unique participants: %d\n", len(participants)))
	sb.WriteString(fmt.Sprintf("Group: %s", groupTitle))
	return sb.String()
}

// tokenize 按非字母数字字符切分并转为小写
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
