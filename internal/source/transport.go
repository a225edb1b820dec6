package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChannelRef 配置中给出的频道标识，可以是用户名、整数 ID 或带 -100 前缀的 ID
type ChannelRef string

// UnmarshalYAML 兼容 YAML 中以整数或字符串形式书写的频道标识
func (r *ChannelRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("频道标识必须是字符串或整数, line %d", value.Line)
	}
	*r = ChannelRef(strings.TrimSpace(value.Value))
	return nil
}

func (r ChannelRef) String() string {
	return string(r)
}

// Channel 解析后的频道句柄
type Channel struct {
	ID    int64
	Title string
	Forum bool // 是否为开启话题的超级群组
}

// Group 频道下的子话题
type Group struct {
	ID    int64
	Title string
}

// Sender 消息发送者信息
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// RawMessage 传输层返回的原始消息
type RawMessage struct {
	ID     int64
	Date   time.Time
	Text   string
	Sender *Sender // nil 表示消息未附带发送者
}

// Message 采集后的消息，按时间升序排列
type Message struct {
	Sender string
	Text   string
}

// Line 返回 "发送者: 内容" 格式的文本行
func (m Message) Line() string {
	return m.Sender + ": " + m.Text
}

// Lines 将消息序列转换为文本行
func Lines(messages []Message) []string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Line()
	}
	return lines
}

// Transport 聊天来源的传输层接口
type Transport interface {
	// ResolveChannel 按给定的单一格式查找频道，不做任何格式推断
	ResolveChannel(ctx context.Context, ref string) (*Channel, error)
	// ForumTopics 返回频道下最多 limit 个话题
	ForumTopics(ctx context.Context, ch *Channel, limit int) ([]Group, error)
	// History 返回 since 之后的消息，groupID 为 0 时表示主频道
	History(ctx context.Context, ch *Channel, groupID int64, since time.Time) ([]RawMessage, error)
}
