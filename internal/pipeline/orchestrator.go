package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/notify"
	"github.com/fachebot/topic-digest-bot/internal/source"
	"github.com/fachebot/topic-digest-bot/internal/summarizer"
)

const (
	DefaultSummaryTimeout = 120 * time.Second
	DefaultPhaseBudget    = 300 * time.Second
)

// Options 编排参数
type Options struct {
	Channel            source.ChannelRef
	TopicIDs           []int64
	IncludeMainChannel bool
	Lookback           time.Duration
	SummaryTimeout     time.Duration // 单个总结的超时，包含等待空闲槽位的时间
	PhaseBudget        time.Duration // 总结和投递阶段的总时长
	Workers            int
	DestinationID      string
	TitleLabel         string
}

// Orchestrator 协调采集、总结和投递
type Orchestrator struct {
	opts      Options
	resolver  *source.Resolver
	catalog   *source.Catalog
	collector *source.Collector
	backend   summarizer.Backend
	sink      notify.Sink
	pool      *Pool
	now       func() time.Time
}

func NewOrchestrator(
	opts Options,
	resolver *source.Resolver,
	catalog *source.Catalog,
	collector *source.Collector,
	backend summarizer.Backend,
	sink notify.Sink,
) *Orchestrator {
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = DefaultSummaryTimeout
	}
	if opts.PhaseBudget <= 0 {
		opts.PhaseBudget = DefaultPhaseBudget
	}
	if opts.TitleLabel == "" {
		opts.TitleLabel = DefaultTitleLabel
	}

	return &Orchestrator{
		opts:      opts,
		resolver:  resolver,
		catalog:   catalog,
		collector: collector,
		backend:   backend,
		sink:      sink,
		pool:      NewPool(opts.Workers),
		now:       time.Now,
	}
}

// RunOnce 执行一次完整的采集、总结、投递流程，可重复调用
func (o *Orchestrator) RunOnce(ctx context.Context) *Report {
	report := &Report{}
	o.enter(report, PhaseCollecting)

	ch, err := o.resolver.Resolve(ctx, o.opts.Channel)
	if err != nil {
		logger.Errorf("[Pipeline] 解析频道 %s 失败: %v", o.opts.Channel, err)
		report.Err = err
		o.enter(report, PhaseDone)
		return report
	}
	report.Channel = ch

	batches := o.collect(ctx, ch)
	report.Batches = len(batches)
	if len(batches) == 0 {
		logger.Infof("[Pipeline] 频道和话题在时间窗口内均无消息，本次无需总结")
		o.enter(report, PhaseDone)
		return report
	}

	o.enter(report, PhaseSummarizing)
	o.summarizeAndDeliver(ctx, batches, report)

	o.enter(report, PhaseDone)
	logger.Infof("[Pipeline] 本次运行完成: %s", report)
	return report
}

func (o *Orchestrator) enter(report *Report, phase Phase) {
	report.Phase = phase
	logger.Debugf("[Pipeline] 进入阶段 %s", phase)
}

type collectTarget struct {
	title string
	group *source.Group // nil 表示主频道
}

// targets 按处理顺序返回采集目标：主频道在前，话题按配置顺序
func (o *Orchestrator) targets(ctx context.Context, ch *source.Channel) []collectTarget {
	targets := make([]collectTarget, 0, len(o.opts.TopicIDs)+1)
	if o.opts.IncludeMainChannel {
		targets = append(targets, collectTarget{title: MainChannelTitle})
	}
	if len(o.opts.TopicIDs) == 0 {
		return targets
	}

	titles := make(map[int64]string)
	for _, g := range o.catalog.ListGroups(ctx, ch) {
		titles[g.ID] = g.Title
	}

	seen := make(map[int64]struct{}, len(o.opts.TopicIDs))
	for _, id := range o.opts.TopicIDs {
		if _, ok := seen[id]; ok {
			logger.Warnf("[Pipeline] 话题 %d 重复配置，已忽略", id)
			continue
		}
		seen[id] = struct{}{}

		title := strings.TrimSpace(titles[id])
		if title == "" {
			title = fmt.Sprintf("Topic %d", id)
		}
		targets = append(targets, collectTarget{title: title, group: &source.Group{ID: id, Title: title}})
	}
	return targets
}

// collect 并发采集所有目标，过滤空结果，必要时追加汇总批次
func (o *Orchestrator) collect(ctx context.Context, ch *source.Channel) []Batch {
	targets := o.targets(ctx, ch)
	since := o.now().Add(-o.opts.Lookback)

	results := make([][]source.Message, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("[Pipeline] 采集 %s 时发生异常: %v", target.title, r)
				}
			}()

			messages, err := o.collector.Collect(ctx, ch, target.group, since)
			if err != nil {
				logger.Errorf("[Pipeline] 采集 %s 失败，按无消息处理: %v", target.title, err)
				return
			}
			results[i] = messages
		}()
	}
	wg.Wait()

	batches := make([]Batch, 0, len(targets)+1)
	var all []source.Message
	for i, target := range targets {
		if len(results[i]) == 0 {
			logger.Infof("[Pipeline] %s 无消息，跳过", target.title)
			continue
		}
		batches = append(batches, Batch{Title: target.title, Messages: results[i]})
		all = append(all, results[i]...)
	}
	if len(batches) >= 2 {
		batches = append(batches, Batch{Title: AggregateTitle, Messages: all})
	}
	return batches
}

type taskResult struct {
	index     int
	result    Result
	delivered bool
	abandoned bool
}

// summarizeAndDeliver 每个批次独立总结并在完成后立即投递，阶段预算耗尽时放弃未完成的任务
func (o *Orchestrator) summarizeAndDeliver(ctx context.Context, batches []Batch, report *Report) {
	phaseCtx, cancel := context.WithTimeout(ctx, o.opts.PhaseBudget)
	defer cancel()

	// 缓冲足够大，被放弃的任务稍后写入也不会阻塞
	done := make(chan taskResult, len(batches))
	for i, batch := range batches {
		go o.runTask(phaseCtx, i, batch, done)
	}

	pending := make(map[int]struct{}, len(batches))
	for i := range batches {
		pending[i] = struct{}{}
	}

	for len(pending) > 0 {
		select {
		case tr := <-done:
			delete(pending, tr.index)
			if tr.abandoned {
				report.Abandoned++
				continue
			}
			if report.Phase != PhaseDelivering {
				o.enter(report, PhaseDelivering)
			}
			if tr.result.Degraded {
				report.Degraded++
			}
			if tr.delivered {
				report.Delivered++
			} else {
				report.FailedDeliveries++
			}
		case <-phaseCtx.Done():
			reason := fmt.Sprintf("超出阶段预算 %v", o.opts.PhaseBudget)
			if ctx.Err() != nil {
				reason = "运行已取消"
			}
			for i := range pending {
				logger.Warnf("[Pipeline] %s 的总结任务%s，已放弃", batches[i].Title, reason)
			}
			report.Abandoned += len(pending)
			return
		}
	}
}

// runTask 总结单个批次并投递，ctx 结束后的结果直接丢弃
func (o *Orchestrator) runTask(ctx context.Context, index int, batch Batch, done chan<- taskResult) {
	tr := taskResult{index: index}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Pipeline] 处理 %s 时发生异常: %v", batch.Title, r)
		}
		done <- tr
	}()

	outcome := o.summarize(ctx, batch)
	if ctx.Err() != nil {
		tr.abandoned = true
		logger.Debugf("[Pipeline] %s 的总结结果已丢弃", batch.Title)
		return
	}

	tr.result = Result{
		Title:    o.opts.TitleLabel + batch.Title,
		Body:     outcome.Text,
		Degraded: outcome.Degraded,
	}
	ok, err := o.sink.Post(ctx, o.opts.DestinationID, tr.result.Title, tr.result.Body, o.backend.Name())
	switch {
	case err != nil:
		logger.Errorf("[Pipeline] 投递 %s 的总结失败: %v", batch.Title, err)
	case !ok:
		logger.Errorf("[Pipeline] 投递目标拒绝了 %s 的总结", batch.Title)
	default:
		tr.delivered = true
		logger.Infof("[Pipeline] 已投递 %s 的总结 (degraded=%v)", batch.Title, outcome.Degraded)
	}
}

type backendReply struct {
	text string
	err  error
}

// summarize 在超时限制内调用远程后端，超时降级为本地统计摘要，其他错误写入摘要正文
func (o *Orchestrator) summarize(ctx context.Context, batch Batch) summarizer.Outcome {
	ctx, cancel := context.WithTimeout(ctx, o.opts.SummaryTimeout)
	defer cancel()

	// 后端可能无视 ctx，调用放在单独的 goroutine 中，此处只等待到超时
	replies := make(chan backendReply, 1)
	go func() {
		var reply backendReply
		defer func() {
			if r := recover(); r != nil {
				reply = backendReply{err: fmt.Errorf("总结后端异常: %v", r)}
			}
			replies <- reply
		}()

		err := o.pool.Do(ctx, func() {
			reply.text, reply.err = o.backend.Summarize(ctx, batch.Text(), batch.Title)
		})
		if err != nil {
			reply.err = err
		}
	}()

	var reply backendReply
	select {
	case reply = <-replies:
	case <-ctx.Done():
		reply.err = ctx.Err()
	}

	if reply.err == nil {
		if strings.TrimSpace(reply.text) != "" {
			return summarizer.Success(reply.text)
		}
		reply.err = errors.New("总结后端返回空内容")
	}

	if summarizer.IsTimeout(reply.err) {
		logger.Warnf("[Pipeline] %s 的总结超时，改用本地统计摘要", batch.Title)
		return summarizer.Degraded(summarizer.SummarizeLocally(batch.Lines(), batch.Title))
	}

	logger.Errorf("[Pipeline] %s 的总结失败: %v", batch.Title, reply.err)
	return summarizer.Degraded("Unable to generate summary. Error: " + reply.err.Error())
}
