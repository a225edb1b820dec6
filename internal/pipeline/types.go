package pipeline

import (
	"fmt"
	"strings"

	"github.com/fachebot/topic-digest-bot/internal/source"
)

const (
	MainChannelTitle  = "Main Channel"
	AggregateTitle    = "All Channels and Topics"
	DefaultTitleLabel = "Telegram Summary: "
)

// Phase 一次运行所处的阶段
type Phase string

const (
	PhaseCollecting  Phase = "collecting"
	PhaseSummarizing Phase = "summarizing"
	PhaseDelivering  Phase = "delivering"
	PhaseDone        Phase = "done"
)

// Batch 一个分组的待总结消息
type Batch struct {
	Title    string
	Messages []source.Message
}

// Lines 返回 "发送者: 内容" 格式的文本行
func (b Batch) Lines() []string {
	return source.Lines(b.Messages)
}

// Text 提交给总结后端的聊天记录
func (b Batch) Text() string {
	return strings.Join(b.Lines(), "\n")
}

// Result 待投递的总结
type Result struct {
	Title    string
	Body     string
	Degraded bool
}

// Report 一次运行的统计
type Report struct {
	Channel          *source.Channel
	Phase            Phase
	Batches          int // 非空分组数（含汇总）
	Delivered        int
	Degraded         int
	FailedDeliveries int
	Abandoned        int   // 超出阶段预算被放弃的任务
	Err              error // 频道解析失败
}

// NoOp 本次运行没有任何消息
func (r *Report) NoOp() bool {
	return r.Err == nil && r.Batches == 0
}

func (r *Report) String() string {
	if r.Err != nil {
		return fmt.Sprintf("phase=%s, error=%v", r.Phase, r.Err)
	}
	return fmt.Sprintf("phase=%s, batches=%d, delivered=%d, degraded=%d, failed=%d, abandoned=%d",
		r.Phase, r.Batches, r.Delivered, r.Degraded, r.FailedDeliveries, r.Abandoned)
}
