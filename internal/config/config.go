package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/source"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type TelegramApp struct {
	ApiId   int32  `yaml:"ApiId"`
	ApiHash string `yaml:"ApiHash"`
	DataDir string `yaml:"DataDir"` // TDLib 数据目录，默认 data
}

type Source struct {
	Channel            source.ChannelRef `yaml:"Channel"`            // 用户名、ID 或 -100 前缀 ID
	TopicIds           []int64           `yaml:"TopicIds"`           // 需要总结的话题ID
	IncludeMainChannel *bool             `yaml:"IncludeMainChannel"` // 是否总结主频道，默认 true
	LookbackHours      int               `yaml:"LookbackHours"`      // 回溯小时数，默认 24
	MaxMessages        int               `yaml:"MaxMessages"`        // 每个分组最多保留的消息数，0 表示不限制
}

type LLM struct {
	Provider       string `yaml:"Provider"` // deepseek / openai / gemini / anthropic
	BaseURL        string `yaml:"BaseURL"`  // 兼容 OpenAI API 的端点
	APIKey         string `yaml:"APIKey"`
	Model          string `yaml:"Model"`
	MaxTokens      int    `yaml:"MaxTokens"`      // 模型上下文窗口大小
	RequestTimeout int    `yaml:"RequestTimeout"` // 单次请求超时（秒），默认 300
	PromptType     string `yaml:"PromptType"`     // general / defi，为空时按话题名选择
	SystemPrompt   string `yaml:"SystemPrompt"`   // 覆盖系统提示词
	UserPrompt     string `yaml:"UserPrompt"`     // 覆盖用户提示词，{text} 为聊天内容占位符
}

type Destination struct {
	Kind      string `yaml:"Kind"`      // discord / slack / telegram
	Token     string `yaml:"Token"`     // Discord/Slack 机器人令牌，telegram 模式下忽略
	ChannelId string `yaml:"ChannelId"` // 目标频道ID
}

type Summary struct {
	Cron           string `yaml:"Cron"`           // cron 表达式，如 "0 23 * * *"
	Timezone       string `yaml:"Timezone"`       // cron 时区，默认 UTC
	SummaryTimeout int    `yaml:"SummaryTimeout"` // 单个总结超时（秒），默认 120
	PhaseBudget    int    `yaml:"PhaseBudget"`    // 总结发送阶段总预算（秒），默认 300
	Workers        int    `yaml:"Workers"`        // 并发调用 LLM 的数量，默认 5
	RunOnStart     *bool  `yaml:"RunOnStart"`     // 启动时立即执行一次，默认 true
}

type Log struct {
	Level string `yaml:"Level"` // debug / info / warn / error
	Dir   string `yaml:"Dir"`   // 日志目录，默认 logs
}

type Config struct {
	Sock5Proxy  Sock5Proxy  `yaml:"Sock5Proxy"`
	TelegramApp TelegramApp `yaml:"TelegramApp"`
	Source      Source      `yaml:"Source"`
	LLM         LLM         `yaml:"LLM"`
	Destination Destination `yaml:"Destination"`
	Summary     Summary     `yaml:"Summary"`
	Log         Log         `yaml:"Log"`
}

// LoadFromFile 读取配置文件
// 同目录或工作目录下存在 .env 时先加载，配置中的 ${VAR} 引用会被环境变量替换
func LoadFromFile(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析配置内容并填充默认值
func Parse(data []byte) (*Config, error) {
	var c Config
	err := yaml.Unmarshal([]byte(expandEnv(string(data))), &c)
	if err != nil {
		return nil, err
	}

	c.applyDefaults()

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv 只替换 ${VAR} 形式的引用，其余 $ 原样保留
func expandEnv(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

func (c *Config) applyDefaults() {
	if c.TelegramApp.DataDir == "" {
		c.TelegramApp.DataDir = "data"
	}
	if c.Source.IncludeMainChannel == nil {
		c.Source.IncludeMainChannel = boolPtr(true)
	}
	if c.Source.LookbackHours == 0 {
		c.Source.LookbackHours = 24
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = "deepseek"
	}
	if c.LLM.BaseURL == "" {
		switch c.LLM.Provider {
		case "deepseek":
			c.LLM.BaseURL = "https://api.deepseek.com"
		case "openai":
			c.LLM.BaseURL = "https://api.openai.com/v1"
		}
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "deepseek":
			c.LLM.Model = "deepseek-chat"
		case "openai":
			c.LLM.Model = "gpt-4o-mini"
		case "gemini":
			c.LLM.Model = "gemini-2.0-flash"
		case "anthropic":
			c.LLM.Model = "claude-3-5-haiku-latest"
		}
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 32000
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = 300
	}
	c.Destination.Kind = strings.ToLower(strings.TrimSpace(c.Destination.Kind))
	if c.Destination.Kind == "" {
		c.Destination.Kind = "discord"
	}
	if c.Summary.Cron == "" {
		c.Summary.Cron = "0 23 * * *"
	}
	if c.Summary.Timezone == "" {
		c.Summary.Timezone = "UTC"
	}
	if c.Summary.SummaryTimeout == 0 {
		c.Summary.SummaryTimeout = 120
	}
	if c.Summary.PhaseBudget == 0 {
		c.Summary.PhaseBudget = 300
	}
	if c.Summary.Workers == 0 {
		c.Summary.Workers = 5
	}
	if c.Summary.RunOnStart == nil {
		c.Summary.RunOnStart = boolPtr(true)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 TelegramApp
	if c.TelegramApp.ApiId == 0 {
		return fmt.Errorf("TelegramApp.ApiId 不能为空")
	}
	if c.TelegramApp.ApiHash == "" {
		return fmt.Errorf("TelegramApp.ApiHash 不能为空")
	}

	// 验证 Source
	if c.Source.Channel == "" {
		return fmt.Errorf("Source.Channel 不能为空")
	}
	if !c.Source.MainChannelEnabled() && len(c.Source.TopicIds) == 0 {
		return fmt.Errorf("Source.IncludeMainChannel 为 false 时 Source.TopicIds 不能为空")
	}
	if c.Source.LookbackHours < 0 {
		return fmt.Errorf("Source.LookbackHours 必须 >= 0")
	}
	if c.Source.MaxMessages < 0 {
		return fmt.Errorf("Source.MaxMessages 必须 >= 0")
	}

	// 验证 LLM
	switch c.LLM.Provider {
	case "deepseek", "openai":
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("LLM.BaseURL 不能为空")
		}
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("LLM.Provider 必须是 'deepseek', 'openai', 'gemini' 或 'anthropic'")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM.APIKey 不能为空")
	}
	if c.LLM.MaxTokens <= 2000 {
		return fmt.Errorf("LLM.MaxTokens 必须大于 2000")
	}
	if c.LLM.RequestTimeout < 0 {
		return fmt.Errorf("LLM.RequestTimeout 必须 >= 0")
	}

	// 验证 Destination
	switch c.Destination.Kind {
	case "discord", "slack":
		if c.Destination.Token == "" {
			return fmt.Errorf("Destination.Token 不能为空（当 Kind 为 '%s' 时）", c.Destination.Kind)
		}
	case "telegram":
	default:
		return fmt.Errorf("Destination.Kind 必须是 'discord', 'slack' 或 'telegram'")
	}
	if c.Destination.ChannelId == "" {
		return fmt.Errorf("Destination.ChannelId 不能为空")
	}

	// 验证 Summary
	if c.Summary.SummaryTimeout < 0 {
		return fmt.Errorf("Summary.SummaryTimeout 必须 >= 0")
	}
	if c.Summary.PhaseBudget < 0 {
		return fmt.Errorf("Summary.PhaseBudget 必须 >= 0")
	}
	if c.Summary.Workers < 0 {
		return fmt.Errorf("Summary.Workers 必须 >= 0")
	}
	if _, err := time.LoadLocation(c.Summary.Timezone); err != nil {
		return fmt.Errorf("Summary.Timezone 无效: %w", err)
	}

	return nil
}

// MainChannelEnabled 是否总结主频道
func (s *Source) MainChannelEnabled() bool {
	return s.IncludeMainChannel == nil || *s.IncludeMainChannel
}

// Lookback 回溯时间窗口
func (s *Source) Lookback() time.Duration {
	return time.Duration(s.LookbackHours) * time.Hour
}

// Location cron 使用的时区
func (s *Summary) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func boolPtr(v bool) *bool {
	return &v
}
