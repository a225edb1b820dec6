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
	"github.com/sashabaranov/go-openai"
)

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client 兼容 OpenAI API 的总结后端（DeepSeek、OpenAI 等）
type Client struct {
	config         *config.LLM
	openaiClient   openAIClientInterface
	prompts        *PromptSelector
	maxInputTokens int
	requestTimeout time.Duration
}

func NewClient(cfg *config.LLM, httpClient *http.Client) *Client {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	if httpClient != nil {
		openaiConfig.HTTPClient = httpClient
	}

	client := &Client{
		config:         cfg,
		openaiClient:   openai.NewClientWithConfig(openaiConfig),
		prompts:        NewPromptSelector(cfg.PromptType, cfg.SystemPrompt, cfg.UserPrompt),
		maxInputTokens: cfg.MaxTokens - 2000, // 预留 2000 tokens 给 system prompt 和输出
		requestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}

	return client
}

// Name 提供方名称，用于总结署名
func (c *Client) Name() string {
	return DisplayName(c.config.Provider)
}

// estimateTokens 估算文本的 token 数量
func estimateTokens(text string) int {
	// 简单估算：中文约 1.5 token/字，英文约 1.3 token/词
	chineseChars := 0
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			chineseChars++
		}
	}

	// 英文词数估算（简单按空格分割）
	englishWords := len(strings.Fields(text))

	// 总 token 估算
	tokens := int(float64(chineseChars)*1.5 + float64(englishWords)*1.3)
	if tokens < len(text)/4 {
		// 如果估算值太小，使用字符数的 1/4 作为下限
		tokens = len(text) / 4
	}

	return tokens
}

// splitLinesIntoChunks 将聊天记录按 token 估算拆分为多个 chunk，单行超限时独占一个 chunk
func splitLinesIntoChunks(lines []string, maxTokensPerChunk int) [][]string {
	if len(lines) == 0 {
		return nil
	}
	chunks := make([][]string, 0)
	current := make([]string, 0)
	currentTokens := 0

	for _, line := range lines {
		tokens := estimateTokens(line)
		if currentTokens+tokens > maxTokensPerChunk && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, line)
		currentTokens += tokens
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// Summarize 总结聊天记录；超出输入预算时分块总结，并把上一块的总结带入下一块
func (c *Client) Summarize(ctx context.Context, batchText, groupTitle string) (string, error) {
	if strings.TrimSpace(batchText) == "" {
		return "", nil
	}

	prompt := c.prompts.Select(groupTitle)
	tokens := estimateTokens(batchText)
	if tokens <= c.maxInputTokens {
		logger.Infof("[LLM] 发送 %s 的聊天记录到 %s (%d tokens)", groupTitle, c.Name(), tokens)
		return c.summarizeOnce(ctx, prompt, batchText, "")
	}

	// Token 超限，采用增量总结
	logger.Infof("[LLM] %s 聊天记录过长 (%d tokens)，将拆分为多个 chunk 进行总结", groupTitle, tokens)
	chunks := splitLinesIntoChunks(strings.Split(batchText, "\n"), c.maxInputTokens)

	var rolling string
	for i, chunk := range chunks {
		logger.Debugf("[LLM] 处理 chunk %d/%d", i+1, len(chunks))
		summary, err := c.summarizeOnce(ctx, prompt, strings.Join(chunk, "\n"), rolling)
		if err != nil {
			return "", fmt.Errorf("总结 chunk %d 失败: %w", i+1, err)
		}
		rolling = summary
	}
	return rolling, nil
}

// summarizeOnce 执行一次总结请求
func (c *Client) summarizeOnce(ctx context.Context, prompt Prompt, chunkContent, previousSummary string) (string, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	userPrompt := prompt.Render(chunkContent)
	if previousSummary != "" {
		userPrompt = "Summary of the earlier part of this conversation:\n" + previousSummary +
			"\n\nUpdate that summary so it also covers the newer messages below.\n\n" + userPrompt
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", summarizer.ErrTimeout, err)
		}
		return "", fmt.Errorf("调用 LLM API 失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM API 返回空结果")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("LLM API 返回空内容")
	}
	return content, nil
}
