package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls   atomic.Int32
	block   chan struct{}
	report  *pipeline.Report
	started chan struct{}
}

func (f *fakeRunner) RunOnce(ctx context.Context) *pipeline.Report {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.report != nil {
		return f.report
	}
	return &pipeline.Report{Phase: pipeline.PhaseDone}
}

func boolPtr(v bool) *bool { return &v }

func TestStart_RunsEagerly(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}, 1)}
	s := NewScheduler(runner, &config.Summary{Cron: "0 23 * * *", Timezone: "UTC"})

	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("启动后应立即执行一次")
	}
}

func TestStart_NoEagerRunWhenDisabled(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, &config.Summary{Cron: "0 23 * * *", RunOnStart: boolPtr(false)})

	require.NoError(t, s.Start())
	s.Stop()

	assert.Zero(t, runner.calls.Load())
}

func TestStart_InvalidCron(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, &config.Summary{Cron: "not a cron"})
	assert.Error(t, s.Start())
}

func TestRunSummary_SkipsWhileRunning(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 2)}
	s := NewScheduler(runner, &config.Summary{Cron: "0 23 * * *", RunOnStart: boolPtr(false)})
	require.NoError(t, s.Start())

	go s.runSummary()
	<-runner.started

	// 第一次仍在执行，第二次应直接跳过
	s.runSummary()
	assert.EqualValues(t, 1, runner.calls.Load())

	close(runner.block)
	s.Stop()
}

func TestRunSummary_ReportsFailure(t *testing.T) {
	runner := &fakeRunner{report: &pipeline.Report{Err: errors.New("channel not found")}}
	s := NewScheduler(runner, &config.Summary{Cron: "0 23 * * *", RunOnStart: boolPtr(false)})
	require.NoError(t, s.Start())
	defer s.Stop()

	s.runSummary()
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestStop_CancelsRunningTask(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewScheduler(runner, &config.Summary{Cron: "0 23 * * *"})
	require.NoError(t, s.Start())
	<-runner.started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop 应取消正在执行的任务")
	}
}
