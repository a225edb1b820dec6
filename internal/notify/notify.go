package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"
)

// Sink 总结投递目标（Discord、Slack、Telegram）
type Sink interface {
	// Post 投递一条总结；返回 false 且 err 为 nil 表示目标拒绝了消息
	Post(ctx context.Context, destinationID, title, body, attribution string) (bool, error)
}

// DatedTitle 返回 "标题 (YYYY-MM-DD)"
func DatedTitle(title string, now time.Time) string {
	return fmt.Sprintf("%s (%s)", title, now.Format(time.DateOnly))
}

// Footer 总结署名
func Footer(attribution string) string {
	if attribution == "" {
		attribution = "AI"
	}
	return "Summary by " + attribution
}

// EscapeHTML 转义 HTML 特殊字符，用于 Telegram HTML 解析模式
func EscapeHTML(text string) string {
	return html.EscapeString(text)
}

// SplitMessage 将消息按字符数拆分为多条，优先在段落、换行、句子边界处断开
func SplitMessage(content string, maxLen int) []string {
	if maxLen <= 0 || utf8.RuneCountInString(content) <= maxLen {
		return []string{content}
	}

	// 按段落拆分
	sep := "\n\n"
	paragraphs := strings.Split(content, sep)
	if len(paragraphs) == 1 {
		// 如果没有段落分隔，按换行拆分，拼接时也只用换行
		sep = "\n"
		paragraphs = strings.Split(content, sep)
	}

	messages := make([]string, 0)
	currentMsg := ""
	flush := func() {
		if currentMsg != "" {
			messages = append(messages, currentMsg)
			currentMsg = ""
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		testMsg := currentMsg
		if testMsg != "" {
			testMsg += sep
		}
		testMsg += para

		if utf8.RuneCountInString(testMsg) <= maxLen {
			currentMsg = testMsg
			continue
		}

		// 当前消息已满，保存并开始新消息
		flush()
		if utf8.RuneCountInString(para) <= maxLen {
			currentMsg = para
			continue
		}

		// 单个段落就超过长度，按句子拆分，句子仍超长时硬切
		for _, sentence := range splitSentences(para) {
			if utf8.RuneCountInString(currentMsg)+utf8.RuneCountInString(sentence)+1 > maxLen {
				flush()
			}
			for utf8.RuneCountInString(sentence) > maxLen {
				runes := []rune(sentence)
				messages = append(messages, string(runes[:maxLen]))
				sentence = string(runes[maxLen:])
			}
			if currentMsg != "" {
				currentMsg += " "
			}
			currentMsg += sentence
		}
	}
	flush()

	return messages
}

// splitSentences 按句末标点拆分，标点保留在句子末尾
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		switch r {
		case '。', '.', '!', '?', '！', '？':
			end := i + utf8.RuneLen(r)
			if s := strings.TrimSpace(text[start:end]); s != "" {
				sentences = append(sentences, s)
			}
			start = end
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
