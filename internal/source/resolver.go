package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fachebot/topic-digest-bot/internal/logger"
)

// broadcastPrefix Telegram 超级群组和频道在 Bot/MTProto API 中使用的 ID 前缀
const broadcastPrefix = "-100"

var ErrChannelNotFound = errors.New("频道不存在")

// channelLookup 单次频道查找（便于测试注入 mock）
type channelLookup interface {
	ResolveChannel(ctx context.Context, ref string) (*Channel, error)
}

// Resolver 将配置里的频道标识解析为传输层句柄
//
// 同一个频道可能以 "-100XXXX" 或 "XXXX" 两种数字形式出现，仅凭配置无法判断
// 传输层接受哪一种，因此依次尝试。若某个频道的裸 ID 恰好等于另一个频道的
// 带前缀 ID，解析结果取决于尝试顺序，这一歧义无法消除。
type Resolver struct {
	lookup  channelLookup
	cacheMu sync.RWMutex
	cache   map[ChannelRef]*Channel
}

func NewResolver(lookup channelLookup) *Resolver {
	return &Resolver{
		lookup: lookup,
		cache:  make(map[ChannelRef]*Channel),
	}
}

// Resolve 解析频道，成功结果按原始标识缓存
func (r *Resolver) Resolve(ctx context.Context, ref ChannelRef) (*Channel, error) {
	r.cacheMu.RLock()
	ch, ok := r.cache[ref]
	r.cacheMu.RUnlock()
	if ok {
		return ch, nil
	}

	var reasons []string
	for _, candidate := range candidates(string(ref)) {
		ch, err := r.lookup.ResolveChannel(ctx, candidate.value)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s(%s): %v", candidate.label, candidate.value, err))
			continue
		}
		if ch == nil {
			reasons = append(reasons, fmt.Sprintf("%s(%s): 返回空结果", candidate.label, candidate.value))
			continue
		}

		r.cacheMu.Lock()
		r.cache[ref] = ch
		r.cacheMu.Unlock()

		logger.Debugf("[Resolver] %s 解析为 %s[%d]，格式: %s", ref, ch.Title, ch.ID, candidate.label)
		return ch, nil
	}

	logger.Errorf("[Resolver] 无法找到频道 %s，已尝试 %d 种格式", ref, len(reasons))
	return nil, fmt.Errorf("%w: %s, %s", ErrChannelNotFound, ref, strings.Join(reasons, "; "))
}

type candidate struct {
	label string
	value string
}

// candidates 按顺序列出要尝试的标识格式
func candidates(ref string) []candidate {
	list := []candidate{{label: "原始格式", value: ref}}

	if bare, ok := strings.CutPrefix(ref, broadcastPrefix); ok {
		if isDigits(bare) {
			list = append(list, candidate{label: "去除 -100 前缀", value: bare})
		}
		return list
	}

	base := strings.TrimPrefix(ref, "-")
	if isDigits(base) {
		list = append(list, candidate{label: "添加 -100 前缀", value: broadcastPrefix + base})
	}
	return list
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
