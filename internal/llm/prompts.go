package llm

import (
	"strings"
)

// textPlaceholder 用户提示词中聊天内容的占位符
const textPlaceholder = "{text}"

// Prompt 一组系统提示词和用户提示词
type Prompt struct {
	System string
	User   string
}

const defaultSystemPrompt = `You are an expert summarization assistant designed to extract key insights from complex conversations.

Core Summarization Guidelines:
1. Identify the most significant information
2. Maintain objectivity and precision
3. Provide clear, structured insights
4. Focus on actionable and meaningful content
5. Adapt to the specific context of the conversation`

const defaultUserPrompt = `Analyze and summarize the following conversation with careful attention to context, key themes, and important details.

Conversation Transcript:
{text}

Summary Expectations:
- Concise yet comprehensive overview
- Highlight main topics and notable interactions
- Capture essential insights and potential implications
- Maintain the original context's tone and significance`

const defiSystemPrompt = `You are a DeFi analyst specializing in summarizing discussions about liquidity provision, yield farming, and whale activity in cryptocurrency markets. Focus on extracting key information about:

1. Specific yield farming opportunities mentioned (protocols, APY rates, tokens)
2. Liquidity provider strategies and deals
3. Notable market movements or whale activities
4. Risk assessments or warnings about specific protocols
5. New DeFi protocols or strategies being discussed

Use crypto terminology appropriately and be precise about numbers, percentages, and token symbols.`

const defiUserPrompt = `Analyze and summarize the following DeFi/crypto discussion, focusing on actionable insights, yield opportunities, and liquidity provision strategies. Extract specific numbers, APYs, protocols, and technical details where available:

{text}`

// prompts 按类型索引的提示词，键同时作为话题名关键字
var prompts = map[string]Prompt{
	"general": {System: defaultSystemPrompt, User: defaultUserPrompt},
	"defi":    {System: defiSystemPrompt, User: defiUserPrompt},
}

// PromptSelector 根据配置和话题名选择提示词
type PromptSelector struct {
	promptType     string
	systemOverride string
	userOverride   string
}

func NewPromptSelector(promptType, systemOverride, userOverride string) *PromptSelector {
	return &PromptSelector{
		promptType:     strings.ToLower(strings.TrimSpace(promptType)),
		systemOverride: systemOverride,
		userOverride:   userOverride,
	}
}

// Select 优先使用显式指定的类型，其次按话题名关键字匹配，最后回退到通用提示词
func (s *PromptSelector) Select(groupTitle string) Prompt {
	p, ok := prompts[s.promptType]
	if !ok {
		p = prompts["general"]
		title := strings.ToLower(groupTitle)
		for _, key := range []string{"defi"} {
			if strings.Contains(title, key) {
				p = prompts[key]
				break
			}
		}
	}

	if s.systemOverride != "" {
		p.System = s.systemOverride
	}
	if s.userOverride != "" {
		p.User = s.userOverride
	}
	return p
}

// Render 将聊天内容填入用户提示词；模板缺少占位符时追加在末尾
func (p Prompt) Render(text string) string {
	if !strings.Contains(p.User, textPlaceholder) {
		return p.User + "\n\n" + text
	}
	return strings.ReplaceAll(p.User, textPlaceholder, text)
}
