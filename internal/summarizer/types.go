package summarizer

import (
	"context"
	"errors"
)

// ErrTimeout 后端主动报告的超时错误
var ErrTimeout = errors.New("总结请求超时")

// Backend 远程总结后端，调用可能阻塞，调用方负责超时控制
type Backend interface {
	// Summarize 对 "发送者: 内容" 格式的聊天记录生成总结
	Summarize(ctx context.Context, batchText, groupTitle string) (string, error)
	// Name 用于署名的提供方名称
	Name() string
}

// Outcome 一次总结的结果，远程成功或本地降级二选一
type Outcome struct {
	Text     string
	Degraded bool
}

// Success 远程总结成功
func Success(text string) Outcome {
	return Outcome{Text: text}
}

// Degraded 降级结果（本地统计或失败提示）
func Degraded(text string) Outcome {
	return Outcome{Text: text, Degraded: true}
}

// IsTimeout 判断错误是否属于超时
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
