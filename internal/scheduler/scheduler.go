package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/pipeline"
	"github.com/robfig/cron/v3"
)

// Runner 执行一次总结流程
type Runner interface {
	RunOnce(ctx context.Context) *pipeline.Report
}

type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	config  *config.Summary
	running atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// cronLogger 将 cron 内部日志转到 logger
type cronLogger struct{}

func (cronLogger) Printf(format string, args ...any) {
	logger.Debugf("[Scheduler] "+format, args...)
}

func NewScheduler(runner Runner, cfg *config.Summary) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithChain(
				cron.Recover(cron.PrintfLogger(cronLogger{})),
				cron.SkipIfStillRunning(cron.PrintfLogger(cronLogger{})),
			),
		),
		runner: runner,
		config: cfg,
	}
}

// Start 启动调度器；配置 RunOnStart 时立即在后台执行一次
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	// 注册定时总结任务
	_, err := s.cron.AddFunc(s.config.Cron, s.runSummary)
	if err != nil {
		return fmt.Errorf("注册定时总结任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，定时总结任务: %s (%s)", s.config.Cron, s.cron.Location())

	if s.config.RunOnStart == nil || *s.config.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSummary()
		}()
	}

	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	logger.Infof("[Scheduler] 调度器已停止")
}

// runSummary 执行一次总结；上一次尚未结束时跳过，启动时的补跑与 cron 触发共用此保护
func (s *Scheduler) runSummary() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	if !s.running.CompareAndSwap(false, true) {
		logger.Warnf("[Scheduler] 上一次总结仍在执行，跳过本次")
		return
	}
	defer s.running.Store(false)

	logger.Infof("[Scheduler] 开始执行总结任务")
	report := s.runner.RunOnce(ctx)
	switch {
	case report == nil:
	case report.Err != nil:
		logger.Errorf("[Scheduler] 总结任务失败: %v", report.Err)
	case report.NoOp():
		logger.Infof("[Scheduler] 时间窗口内无消息，本次未生成总结")
	default:
		logger.Infof("[Scheduler] 总结任务完成: %s", report)
	}
}
