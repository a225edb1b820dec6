package llm

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// integrationTestConfig 从环境变量构建测试配置，若 LLM_API_KEY 未设置则跳过
func integrationTestConfig(t *testing.T) *config.LLM {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" || apiKey == "your-api-key-here" {
		t.Skip("跳过集成测试：请设置 LLM_API_KEY 环境变量")
	}
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &config.LLM{
		Provider:       "openai",
		APIKey:         apiKey,
		BaseURL:        baseURL,
		Model:          model,
		MaxTokens:      16000,
		RequestTimeout: 60,
	}
}

func TestSummarize_Integration(t *testing.T) {
	cfg := integrationTestConfig(t)
	client := NewClient(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	lines := []string{
		"@alice: gm everyone, the new pool on Curve is live",
		"@bob: what's the APY looking like?",
		"@alice: around 14% on the stable pair, rewards in CRV",
		"Carol Smith: careful, the gauge vote ends on Thursday",
		"@bob: noted, I'll move half of my position there",
	}

	result, err := client.Summarize(ctx, strings.Join(lines, "\n"), "DeFi Yields")
	require.NoError(t, err)
	require.NotEmpty(t, result)

	t.Log("\n--- 总结 ---")
	t.Log(result)
}

func TestSummarize_Integration_EmptyText(t *testing.T) {
	cfg := integrationTestConfig(t)
	client := NewClient(cfg, nil)

	result, err := client.Summarize(context.Background(), "", "Main Channel")
	require.NoError(t, err)
	assert.Empty(t, result)
}
