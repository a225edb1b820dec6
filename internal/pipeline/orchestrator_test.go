package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/source"
	"github.com/fachebot/topic-digest-bot/internal/summarizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannel = source.ChannelRef("@defi_chat")

// fakeTransport 内存中的聊天来源
type fakeTransport struct {
	channel     *source.Channel
	topics      []source.Group
	history     map[int64][]source.RawMessage
	errs        map[int64]error
	historyHits atomic.Int32
	onHistory   func(groupID int64)
}

func (f *fakeTransport) ResolveChannel(ctx context.Context, ref string) (*source.Channel, error) {
	if f.channel == nil || ref != string(testChannel) {
		return nil, errors.New("CHANNEL_INVALID")
	}
	return f.channel, nil
}

func (f *fakeTransport) ForumTopics(ctx context.Context, ch *source.Channel, limit int) ([]source.Group, error) {
	return f.topics, nil
}

func (f *fakeTransport) History(ctx context.Context, ch *source.Channel, groupID int64, since time.Time) ([]source.RawMessage, error) {
	f.historyHits.Add(1)
	if f.onHistory != nil {
		f.onHistory(groupID)
	}
	if err := f.errs[groupID]; err != nil {
		return nil, err
	}
	return f.history[groupID], nil
}

func msgs(texts ...string) []source.RawMessage {
	base := time.Now().Add(-time.Hour)
	out := make([]source.RawMessage, 0, len(texts))
	for i, text := range texts {
		name, body, _ := strings.Cut(text, ": ")
		out = append(out, source.RawMessage{
			ID:     int64(i + 1),
			Date:   base.Add(time.Duration(i) * time.Minute),
			Text:   body,
			Sender: &source.Sender{ID: int64(i + 1), Username: name},
		})
	}
	return out
}

// fakeBackend 可按标题控制延迟和错误
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	summary  func(ctx context.Context, batchText, groupTitle string) (string, error)
}

func (b *fakeBackend) Name() string { return "Deepseek" }

func (b *fakeBackend) Summarize(ctx context.Context, batchText, groupTitle string) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, groupTitle)
	b.mu.Unlock()

	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if b.summary != nil {
		return b.summary(ctx, batchText, groupTitle)
	}
	return "summary of " + groupTitle, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type post struct {
	destination string
	title       string
	body        string
	attribution string
}

// recordingSink 记录所有投递
type recordingSink struct {
	mu     sync.Mutex
	posts  []post
	reject map[string]bool
	fail   map[string]error
}

func (s *recordingSink) Post(ctx context.Context, destinationID, title, body, attribution string) (bool, error) {
	if err := s.fail[title]; err != nil {
		return false, err
	}
	if s.reject[title] {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, post{destinationID, title, body, attribution})
	return true, nil
}

func (s *recordingSink) snapshot() []post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]post(nil), s.posts...)
}

func (s *recordingSink) titles() []string {
	var titles []string
	for _, p := range s.snapshot() {
		titles = append(titles, p.title)
	}
	return titles
}

func forumTransport() *fakeTransport {
	return &fakeTransport{
		channel: &source.Channel{ID: -1001234567890, Title: "DeFi Chat", Forum: true},
		topics:  []source.Group{{ID: 7, Title: "Yields"}, {ID: 9, Title: "Whales"}},
		history: map[int64][]source.RawMessage{
			0: msgs("alice: gm", "bob: gm too"),
			7: msgs("carol: apy on the stable pool is 14%"),
			9: msgs("dave: a whale moved 10k ETH", "erin: to which exchange?"),
		},
	}
}

func newTestOrchestrator(tr *fakeTransport, backend summarizer.Backend, sink *recordingSink, opts Options) *Orchestrator {
	if opts.Channel == "" {
		opts.Channel = testChannel
	}
	if opts.Lookback == 0 {
		opts.Lookback = 24 * time.Hour
	}
	if opts.DestinationID == "" {
		opts.DestinationID = "998877"
	}
	return NewOrchestrator(
		opts,
		source.NewResolver(tr),
		source.NewCatalog(tr),
		source.NewCollector(tr, 0),
		backend,
		sink,
	)
}

func TestRunOnce_MainAndTwoTopics(t *testing.T) {
	tr := forumTransport()
	backend := &fakeBackend{}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{IncludeMainChannel: true, TopicIDs: []int64{7, 9}})

	report := o.RunOnce(context.Background())

	require.NoError(t, report.Err)
	assert.Equal(t, PhaseDone, report.Phase)
	assert.Equal(t, 4, report.Batches)
	assert.Equal(t, 4, report.Delivered)
	assert.Zero(t, report.Degraded)
	assert.Equal(t, 4, backend.callCount())

	assert.ElementsMatch(t, []string{
		"Telegram Summary: Main Channel",
		"Telegram Summary: Yields",
		"Telegram Summary: Whales",
		"Telegram Summary: All Channels and Topics",
	}, sink.titles())

	for _, p := range sink.snapshot() {
		assert.Equal(t, "998877", p.destination)
		assert.Equal(t, "Deepseek", p.attribution)
		assert.True(t, strings.HasPrefix(p.body, "summary of "))
	}
}

func TestRunOnce_CollectsConcurrently(t *testing.T) {
	tr := forumTransport()
	// 三个分组的拉取互相等待，顺序拉取会卡到超时
	var barrier sync.WaitGroup
	barrier.Add(3)
	var stalled atomic.Bool
	tr.onHistory = func(groupID int64) {
		barrier.Done()
		done := make(chan struct{})
		go func() {
			barrier.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			stalled.Store(true)
		}
	}
	o := newTestOrchestrator(tr, &fakeBackend{}, &recordingSink{}, Options{IncludeMainChannel: true, TopicIDs: []int64{7, 9}})

	report := o.RunOnce(context.Background())

	require.NoError(t, report.Err)
	assert.False(t, stalled.Load(), "history requests did not overlap")
	assert.Equal(t, 4, report.Batches)
	assert.Equal(t, int32(3), tr.historyHits.Load())
}

func TestRunOnce_AggregateInProcessingOrder(t *testing.T) {
	tr := forumTransport()
	var aggregate string
	var mu sync.Mutex
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		if groupTitle == AggregateTitle {
			mu.Lock()
			aggregate = batchText
			mu.Unlock()
		}
		return "ok", nil
	}}
	o := newTestOrchestrator(tr, backend, &recordingSink{}, Options{IncludeMainChannel: true, TopicIDs: []int64{9, 7}})

	o.RunOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, strings.Join([]string{
		"@alice: gm",
		"@bob: gm too",
		"@dave: a whale moved 10k ETH",
		"@erin: to which exchange?",
		"@carol: apy on the stable pool is 14%",
	}, "\n"), aggregate)
}

func TestRunOnce_SingleNonEmptyGroupHasNoAggregate(t *testing.T) {
	tr := forumTransport()
	tr.history[7] = nil
	tr.history[9] = nil
	backend := &fakeBackend{}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{IncludeMainChannel: true, TopicIDs: []int64{7, 9}})

	report := o.RunOnce(context.Background())

	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, []string{"Telegram Summary: Main Channel"}, sink.titles())
	assert.Equal(t, 1, backend.callCount())
}

func TestRunOnce_TimeoutDegradesToLocalSummary(t *testing.T) {
	tr := forumTransport()
	release := make(chan struct{})
	defer close(release)
	// 后端无视 ctx，依赖编排器自己的计时
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		<-release
		return "too late", nil
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{
		IncludeMainChannel: true,
		SummaryTimeout:     30 * time.Millisecond,
		PhaseBudget:        5 * time.Second,
	})

	report := o.RunOnce(context.Background())

	require.Len(t, sink.snapshot(), 1)
	body := sink.snapshot()[0].body
	assert.Contains(t, body, "@alice (1)")
	assert.Contains(t, body, "@bob (1)")
	assert.Contains(t, body, "Total messages: 2")
	assert.Contains(t, body, "Unique participants: 2")
	assert.Equal(t, 1, report.Degraded)
	assert.Equal(t, 1, report.Delivered)
}

func TestRunOnce_BackendTimeoutError(t *testing.T) {
	tr := forumTransport()
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		return "", fmt.Errorf("%w: read tcp: i/o timeout", summarizer.ErrTimeout)
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{IncludeMainChannel: true})

	report := o.RunOnce(context.Background())

	require.Len(t, sink.snapshot(), 1)
	assert.Contains(t, sink.snapshot()[0].body, "Quick summary for Main Channel")
	assert.Equal(t, 1, report.Degraded)
}

func TestRunOnce_BackendErrorIsEmbedded(t *testing.T) {
	tr := forumTransport()
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		return "", errors.New("401 invalid api key")
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{IncludeMainChannel: true})

	report := o.RunOnce(context.Background())

	require.Len(t, sink.snapshot(), 1)
	assert.Equal(t, "Unable to generate summary. Error: 401 invalid api key", sink.snapshot()[0].body)
	assert.Equal(t, 1, report.Degraded)
}

func TestRunOnce_BackendPanicIsEmbedded(t *testing.T) {
	tr := forumTransport()
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		panic("boom")
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{IncludeMainChannel: true})

	o.RunOnce(context.Background())

	require.Len(t, sink.snapshot(), 1)
	assert.Contains(t, sink.snapshot()[0].body, "Unable to generate summary. Error: ")
	assert.Contains(t, sink.snapshot()[0].body, "boom")
}

func TestRunOnce_CollectionErrorExcludesGroup(t *testing.T) {
	tr := forumTransport()
	tr.errs = map[int64]error{7: errors.New("FLOOD_WAIT_30")}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, &fakeBackend{}, sink, Options{IncludeMainChannel: true, TopicIDs: []int64{7, 9}})

	report := o.RunOnce(context.Background())

	assert.Equal(t, 3, report.Batches)
	assert.ElementsMatch(t, []string{
		"Telegram Summary: Main Channel",
		"Telegram Summary: Whales",
		"Telegram Summary: All Channels and Topics",
	}, sink.titles())
}

func TestRunOnce_AllEmpty(t *testing.T) {
	tr := forumTransport()
	tr.history = nil
	backend := &fakeBackend{}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{IncludeMainChannel: true, TopicIDs: []int64{7, 9}})

	report := o.RunOnce(context.Background())

	require.NoError(t, report.Err)
	assert.True(t, report.NoOp())
	assert.Equal(t, PhaseDone, report.Phase)
	assert.Zero(t, backend.callCount())
	assert.Empty(t, sink.snapshot())
	assert.EqualValues(t, 3, tr.historyHits.Load())
}

func TestRunOnce_ResolutionFailure(t *testing.T) {
	tr := forumTransport()
	backend := &fakeBackend{}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{Channel: "@missing", IncludeMainChannel: true})

	report := o.RunOnce(context.Background())

	assert.ErrorIs(t, report.Err, source.ErrChannelNotFound)
	assert.False(t, report.NoOp())
	assert.Zero(t, tr.historyHits.Load())
	assert.Zero(t, backend.callCount())
	assert.Empty(t, sink.snapshot())
}

func TestRunOnce_UnknownTopicTitleFallback(t *testing.T) {
	tr := forumTransport()
	tr.history[42] = msgs("frank: anyone here?")
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, &fakeBackend{}, sink, Options{TopicIDs: []int64{42}})

	o.RunOnce(context.Background())

	assert.Equal(t, []string{"Telegram Summary: Topic 42"}, sink.titles())
}

func TestRunOnce_DeliveryInCompletionOrder(t *testing.T) {
	tr := forumTransport()
	delays := map[string]time.Duration{
		MainChannelTitle: 150 * time.Millisecond,
		"Yields":         60 * time.Millisecond,
		AggregateTitle:   0,
	}
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		time.Sleep(delays[groupTitle])
		return "ok", nil
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{IncludeMainChannel: true, TopicIDs: []int64{7}})

	o.RunOnce(context.Background())

	assert.Equal(t, []string{
		"Telegram Summary: All Channels and Topics",
		"Telegram Summary: Yields",
		"Telegram Summary: Main Channel",
	}, sink.titles())
}

func TestRunOnce_DeliveryFailureDoesNotAffectSiblings(t *testing.T) {
	tr := forumTransport()
	sink := &recordingSink{
		fail:   map[string]error{"Telegram Summary: Yields": errors.New("502 bad gateway")},
		reject: map[string]bool{"Telegram Summary: Whales": true},
	}
	o := newTestOrchestrator(tr, &fakeBackend{}, sink, Options{IncludeMainChannel: true, TopicIDs: []int64{7, 9}})

	report := o.RunOnce(context.Background())

	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 2, report.FailedDeliveries)
	assert.ElementsMatch(t, []string{
		"Telegram Summary: Main Channel",
		"Telegram Summary: All Channels and Topics",
	}, sink.titles())
}

func TestRunOnce_PhaseBudgetAbandonsAndDiscards(t *testing.T) {
	tr := forumTransport()
	release := make(chan struct{})
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		if groupTitle == MainChannelTitle {
			return "fast", nil
		}
		<-release
		return "slow", nil
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{
		IncludeMainChannel: true,
		TopicIDs:           []int64{7},
		SummaryTimeout:     10 * time.Second,
		PhaseBudget:        80 * time.Millisecond,
	})

	start := time.Now()
	report := o.RunOnce(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 2, report.Abandoned)
	assert.Equal(t, []string{"Telegram Summary: Main Channel"}, sink.titles())

	// 被放弃的任务稍后完成也不会投递
	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"Telegram Summary: Main Channel"}, sink.titles())
}

func TestRunOnce_WorkerPoolBound(t *testing.T) {
	tr := forumTransport()
	backend := &fakeBackend{summary: func(ctx context.Context, batchText, groupTitle string) (string, error) {
		time.Sleep(40 * time.Millisecond)
		return "ok", nil
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, backend, sink, Options{
		IncludeMainChannel: true,
		TopicIDs:           []int64{7, 9},
		Workers:            2,
	})

	report := o.RunOnce(context.Background())

	assert.Equal(t, 4, report.Delivered)
	assert.EqualValues(t, 2, backend.maxSeen.Load())
}

func TestRunOnce_Repeatable(t *testing.T) {
	tr := forumTransport()
	sink := &recordingSink{}
	o := newTestOrchestrator(tr, &fakeBackend{}, sink, Options{IncludeMainChannel: true})

	first := o.RunOnce(context.Background())
	second := o.RunOnce(context.Background())

	assert.Equal(t, 1, first.Delivered)
	assert.Equal(t, 1, second.Delivered)
	assert.Len(t, sink.snapshot(), 2)
	assert.Same(t, first.Channel, second.Channel)
}
