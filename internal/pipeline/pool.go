package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers 远程总结的默认并发数
const DefaultWorkers = 5

// Pool 限制同时进行的远程总结调用数
type Pool struct {
	sem *semaphore.Weighted
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Do 占用一个槽位执行 fn，等待槽位期间 ctx 结束则直接返回 ctx 的错误
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	fn()
	return nil
}
