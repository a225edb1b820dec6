package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/summarizer"
)

const anthropicMaxOutputTokens = 1000

// messageCreator 定义 Anthropic 消息接口，便于测试
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient 基于 Anthropic Claude 的总结后端
type AnthropicClient struct {
	config         *config.LLM
	messages       messageCreator
	prompts        *PromptSelector
	requestTimeout time.Duration
}

func NewAnthropicClient(cfg *config.LLM, httpClient *http.Client) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicClient{
		config:         cfg,
		messages:       &client.Messages,
		prompts:        NewPromptSelector(cfg.PromptType, cfg.SystemPrompt, cfg.UserPrompt),
		requestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}
}

func (a *AnthropicClient) Name() string {
	return DisplayName(a.config.Provider)
}

// Summarize 总结聊天记录
func (a *AnthropicClient) Summarize(ctx context.Context, batchText, groupTitle string) (string, error) {
	if strings.TrimSpace(batchText) == "" {
		return "", nil
	}
	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}

	prompt := a.prompts.Select(groupTitle)
	logger.Infof("[LLM] 发送 %s 的聊天记录到 Anthropic (%s)", groupTitle, a.config.Model)

	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.config.Model),
		MaxTokens:   anthropicMaxOutputTokens,
		Temperature: anthropic.Float(0.3),
		System:      []anthropic.TextBlockParam{{Text: prompt.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.Render(batchText))),
		},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", summarizer.ErrTimeout, err)
		}
		return "", fmt.Errorf("调用 Anthropic API 失败: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", fmt.Errorf("Anthropic API 返回空结果")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("Anthropic API 返回空内容")
	}
	return content, nil
}
