package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/summarizer"
	"google.golang.org/genai"
)

// contentGenerator 定义 Gemini 生成接口，便于测试
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient 基于 Google Gemini 的总结后端
type GeminiClient struct {
	config         *config.LLM
	models         contentGenerator
	prompts        *PromptSelector
	requestTimeout time.Duration
}

func NewGeminiClient(ctx context.Context, cfg *config.LLM, httpClient *http.Client) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}

	return &GeminiClient{
		config:         cfg,
		models:         client.Models,
		prompts:        NewPromptSelector(cfg.PromptType, cfg.SystemPrompt, cfg.UserPrompt),
		requestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}, nil
}

func (g *GeminiClient) Name() string {
	return DisplayName(g.config.Provider)
}

// Summarize 总结聊天记录
func (g *GeminiClient) Summarize(ctx context.Context, batchText, groupTitle string) (string, error) {
	if strings.TrimSpace(batchText) == "" {
		return "", nil
	}
	if g.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.requestTimeout)
		defer cancel()
	}

	prompt := g.prompts.Select(groupTitle)
	logger.Infof("[LLM] 发送 %s 的聊天记录到 Gemini (%s)", groupTitle, g.config.Model)

	resp, err := g.models.GenerateContent(ctx, g.config.Model, genai.Text(prompt.Render(batchText)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		MaxOutputTokens:   1000,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", summarizer.ErrTimeout, err)
		}
		return "", fmt.Errorf("调用 Gemini API 失败: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("Gemini API 返回空结果")
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", fmt.Errorf("Gemini API 返回空内容")
	}
	return content, nil
}
