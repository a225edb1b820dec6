package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/summarizer"
)

var displayNames = map[string]string{
	"deepseek":  "Deepseek",
	"openai":    "OpenAI",
	"gemini":    "Gemini",
	"anthropic": "Anthropic",
}

// DisplayName 返回提供方的展示名称
func DisplayName(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if name, ok := displayNames[provider]; ok {
		return name
	}
	if provider == "" {
		return "AI"
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

// NewBackend 根据配置创建总结后端
func NewBackend(ctx context.Context, cfg *config.LLM, httpClient *http.Client) (summarizer.Backend, error) {
	switch cfg.Provider {
	case "deepseek", "openai":
		return NewClient(cfg, httpClient), nil
	case "gemini":
		client, err := NewGeminiClient(ctx, cfg, httpClient)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "anthropic":
		return NewAnthropicClient(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("不支持的 LLM 提供方: %s", cfg.Provider)
	}
}
