package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestTriggerRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	job := Job{Name: JobPipeline, Spec: "0 */30 * * * *", Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("espn: status 503")
		}
		return nil
	}}
	o, err := NewOrchestrator(testConfig(), nil, job)
	require.NoError(t, err)

	require.NoError(t, o.TriggerPipeline(context.Background()))
	assert.Equal(t, int32(3), calls.Load())

	status := o.GetStatus()
	require.Len(t, status, 1)
	assert.Equal(t, JobPipeline, status[0].Name)
	assert.Equal(t, 0, status[0].ConsecutiveErrors)
	assert.Empty(t, status[0].LastError)
	assert.NotNil(t, status[0].LastRun)
}

func TestTriggerCountsConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	job := Job{Name: JobResults, Run: func(context.Context) error {
		calls.Add(1)
		return errors.New("database unavailable")
	}}
	o, err := NewOrchestrator(testConfig(), nil, job)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.EqualError(t, o.Trigger(context.Background(), JobResults), "database unavailable")
	}
	assert.Equal(t, int32(6), calls.Load())

	s := o.GetStatus()[0]
	assert.Equal(t, 2, s.ConsecutiveErrors)
	assert.Equal(t, "database unavailable", s.LastError)
	assert.Nil(t, s.NextRun)
}

func TestTriggerStopsRetryingOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	o, err := NewOrchestrator(cfg, nil, Job{Name: JobTrain, Run: func(context.Context) error {
		return errors.New("insufficient data")
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Trigger(ctx, JobTrain), context.DeadlineExceeded)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	o, err := NewOrchestrator(testConfig(), nil, Job{Name: JobAccuracy, Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- o.Trigger(context.Background(), JobAccuracy) }()
	<-started

	assert.ErrorIs(t, o.Trigger(context.Background(), JobAccuracy), errBusy)
	assert.True(t, o.GetStatus()[0].Running)

	close(release)
	assert.NoError(t, <-done)
}

func TestNewOrchestratorValidation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	_, err := NewOrchestrator(nil, nil, Job{Name: JobPipeline, Spec: "every tuesday", Run: noop})
	assert.ErrorContains(t, err, "spec")

	_, err = NewOrchestrator(nil, nil, Job{Name: JobPipeline, Run: noop}, Job{Name: JobPipeline, Run: noop})
	assert.ErrorContains(t, err, "duplicate")

	o, err := NewOrchestrator(nil, nil, Job{Name: JobPipeline, Run: noop})
	require.NoError(t, err)
	assert.ErrorContains(t, o.Trigger(context.Background(), "nope"), "unknown job")
}

func TestStartRunsOnStartJobsAndReportsNextRun(t *testing.T) {
	ran := make(chan struct{}, 1)
	cfg := testConfig()
	cfg.RunOnStart = []string{JobPipeline}
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cfg.Location = loc

	o, err := NewOrchestrator(cfg, nil, Job{Name: JobPipeline, Spec: "0 0 5 * * 1", Run: func(context.Context) error {
		ran <- struct{}{}
		return nil
	}})
	require.NoError(t, err)

	o.Start()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("run-on-start job did not run")
	}

	s := o.GetStatus()[0]
	require.NotNil(t, s.NextRun)
	next := s.NextRun.In(loc)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 5, next.Hour())
	o.Stop()
}
