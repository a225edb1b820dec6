package source

import (
	"context"

	"github.com/fachebot/topic-digest-bot/internal/logger"
)

// MaxGroups 单次查询的话题数量上限，超出部分不做分页
const MaxGroups = 100

// topicLister 查询论坛话题（便于测试注入 mock）
type topicLister interface {
	ForumTopics(ctx context.Context, ch *Channel, limit int) ([]Group, error)
}

// Catalog 查询频道下的子话题
type Catalog struct {
	lister topicLister
}

func NewCatalog(lister topicLister) *Catalog {
	return &Catalog{lister: lister}
}

// ListGroups 返回频道的话题列表；频道不支持话题或查询失败时返回空列表
func (c *Catalog) ListGroups(ctx context.Context, ch *Channel) []Group {
	if !ch.Forum {
		logger.Infof("[Catalog] 频道 %s 不是论坛，没有话题", ch.Title)
		return []Group{}
	}

	topics, err := c.lister.ForumTopics(ctx, ch, MaxGroups)
	if err != nil {
		logger.Errorf("[Catalog] 获取频道 %s 的话题失败: %v", ch.Title, err)
		return []Group{}
	}

	groups := make([]Group, 0, min(len(topics), MaxGroups))
	seen := make(map[int64]bool, len(topics))
	for _, topic := range topics {
		if len(groups) == MaxGroups {
			break
		}
		if seen[topic.ID] {
			continue
		}
		seen[topic.ID] = true
		groups = append(groups, topic)
	}

	logger.Infof("[Catalog] 频道 %s 共有 %d 个话题", ch.Title, len(groups))
	return groups
}
