package source

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/logger"
)

// historyReader 读取消息历史（便于测试注入 mock）
type historyReader interface {
	History(ctx context.Context, ch *Channel, groupID int64, since time.Time) ([]RawMessage, error)
}

// Collector 采集时间窗口内的消息
type Collector struct {
	reader      historyReader
	maxMessages int // 每个分组保留的最多消息数，0 表示不限制
}

func NewCollector(reader historyReader, maxMessages int) *Collector {
	return &Collector{
		reader:      reader,
		maxMessages: maxMessages,
	}
}

// Collect 采集 since 之后的消息，按时间升序返回
// group 为 nil 时采集主频道
func (c *Collector) Collect(ctx context.Context, ch *Channel, group *Group, since time.Time) ([]Message, error) {
	groupID := int64(0)
	if group != nil {
		groupID = group.ID
	}

	raws, err := c.reader.History(ctx, ch, groupID, since)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 的消息失败: %w", describe(ch, group), err)
	}

	kept := make([]RawMessage, 0, len(raws))
	for _, raw := range raws {
		if raw.Date.Before(since) {
			continue
		}
		if strings.TrimSpace(raw.Text) == "" {
			continue
		}
		kept = append(kept, raw)
	}
	slices.SortStableFunc(kept, func(a, b RawMessage) int {
		return a.Date.Compare(b.Date)
	})

	if c.maxMessages > 0 && len(kept) > c.maxMessages {
		logger.Debugf("[Collector] %s 消息数 %d 超过上限 %d，仅保留最近的消息", describe(ch, group), len(kept), c.maxMessages)
		kept = kept[len(kept)-c.maxMessages:]
	}

	messages := make([]Message, len(kept))
	for i, raw := range kept {
		messages[i] = Message{
			Sender: DisplayName(raw.Sender),
			Text:   raw.Text,
		}
	}

	logger.Infof("[Collector] 从 %s 采集到 %d 条消息", describe(ch, group), len(messages))
	return messages, nil
}

// DisplayName 按 @用户名、姓名、名字、用户ID 的优先级生成发送者名称
func DisplayName(sender *Sender) string {
	if sender == nil {
		return "Unknown"
	}
	if sender.Username != "" {
		return "@" + sender.Username
	}
	if sender.FirstName != "" {
		if sender.LastName != "" {
			return sender.FirstName + " " + sender.LastName
		}
		return sender.FirstName
	}
	return strconv.FormatInt(sender.ID, 10)
}

func describe(ch *Channel, group *Group) string {
	if group == nil {
		return ch.Title
	}
	return fmt.Sprintf("%s 话题 %d", ch.Title, group.ID)
}
