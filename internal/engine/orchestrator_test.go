package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmind-app/mailmind-be/internal/ai"
)

// newTestOrchestrator starts an orchestrator on a mock clock with very long
// loop intervals, so tests drive scheduling through Tick and mock.Add never
// fires the background tickers.
func newTestOrchestrator(t *testing.T, cfg Config, stub *stubInference) (*Orchestrator, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	cfg.TickInterval = time.Hour
	cfg.SweepInterval = 24 * time.Hour

	o := New(cfg, NewRegistry(stub), mock, nil)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(o.Stop)
	return o, mock
}

func waitEvent(t *testing.T, o *Orchestrator) Event {
	t.Helper()
	select {
	case ev := <-o.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for engine event")
		return Event{}
	}
}

func TestOrchestrator_SubmitJobValidation(t *testing.T) {
	t.Run("nil payload", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, Config{}, &stubInference{})
		_, err := o.SubmitJob(JobSpec{})
		assert.ErrorIs(t, err, ErrNilPayload)
	})

	t.Run("invalid priority", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, Config{}, &stubInference{})
		_, err := o.SubmitJob(JobSpec{
			Payload:  ChatPayload{Input: "hi"},
			Priority: "urgent",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid priority")
	})

	t.Run("engine not started", func(t *testing.T) {
		o := New(Config{}, NewRegistry(&stubInference{}), clock.NewMock(), nil)
		_, err := o.SubmitJob(JobSpec{Payload: ChatPayload{Input: "hi"}})
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("engine stopped", func(t *testing.T) {
		o := New(Config{}, NewRegistry(&stubInference{}), clock.NewMock(), nil)
		require.NoError(t, o.Start(context.Background()))
		o.Stop()

		_, err := o.SubmitJob(JobSpec{Payload: ChatPayload{Input: "hi"}})
		assert.ErrorIs(t, err, ErrNotRunning)
	})
}

func TestOrchestrator_CompletesJobsAcrossPriorities(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MinWorkers: 2, MaxWorkers: 2}, &stubInference{})
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := o.SubmitJob(JobSpec{
			Payload:  ClassificationPayload{EmailID: fmt.Sprintf("e-%d", i), Content: "text"},
			Priority: PriorityHigh,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool {
		o.Tick(ctx)
		return o.Stats().CompletedCount == 3
	}, 2*time.Second, 5*time.Millisecond)

	stats := o.Stats()
	assert.Zero(t, stats.QueueSizes.High)
	assert.Zero(t, stats.ProcessingCount)
	assert.Zero(t, stats.FailedCount)

	for _, id := range ids {
		status, ok := o.GetJobStatus(id)
		require.True(t, ok, "job %s", id)
		assert.Equal(t, StatusCompleted, status.Status)
		assert.NotNil(t, status.Result)
	}
}

func TestOrchestrator_EmitsCompletionEvent(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MinWorkers: 1, MaxWorkers: 1}, &stubInference{})

	id, err := o.SubmitJob(JobSpec{Payload: SummarizationPayload{Content: "long text", MaxLength: 50}})
	require.NoError(t, err)

	o.Tick(context.Background())

	ev := waitEvent(t, o)
	assert.Equal(t, EventJobCompleted, ev.Type)
	assert.Equal(t, id, ev.Job.ID)
	assert.NotNil(t, ev.Result)
	assert.False(t, ev.WillRetry)
	assert.Empty(t, ev.Error)
}

func TestOrchestrator_RetriesUntilAttemptsExhausted(t *testing.T) {
	stub := &stubInference{
		classifyFn: func(ctx context.Context) (*ai.Classification, error) {
			return nil, errors.New("model overloaded")
		},
	}
	o, mock := newTestOrchestrator(t, Config{MinWorkers: 1, MaxWorkers: 1}, stub)
	ctx := context.Background()

	id, err := o.SubmitJob(JobSpec{
		Payload:     ClassificationPayload{EmailID: "e-1", Content: "text"},
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	// Attempt 1 fails and schedules a retry 1s out.
	o.Tick(ctx)
	ev := waitEvent(t, o)
	assert.Equal(t, EventJobFailed, ev.Type)
	assert.True(t, ev.WillRetry)
	assert.Equal(t, 1, ev.Job.Attempts)

	// Not due yet: a tick before the backoff elapses must not re-run it.
	o.Tick(ctx)
	assert.Equal(t, 1, stub.calls())

	// Attempt 2 after 1s backoff.
	mock.Add(time.Second)
	o.Tick(ctx)
	ev = waitEvent(t, o)
	assert.True(t, ev.WillRetry)
	assert.Equal(t, 2, ev.Job.Attempts)

	// Attempt 3 after 2s backoff; attempts are exhausted, terminal failure.
	mock.Add(2 * time.Second)
	o.Tick(ctx)
	ev = waitEvent(t, o)
	assert.Equal(t, EventJobFailed, ev.Type)
	assert.False(t, ev.WillRetry)
	assert.Equal(t, 3, ev.Job.Attempts)
	assert.Equal(t, 3, stub.calls())

	status, ok := o.GetJobStatus(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, status.Status)
	assert.Contains(t, status.Error, "model overloaded")
}

func TestOrchestrator_PermanentInferenceErrorSkipsRetry(t *testing.T) {
	stub := &stubInference{
		classifyFn: func(ctx context.Context) (*ai.Classification, error) {
			return nil, ai.NewPermanentError(errors.New("upstream returned status 422"))
		},
	}
	o, _ := newTestOrchestrator(t, Config{MinWorkers: 1, MaxWorkers: 1}, stub)

	id, err := o.SubmitJob(JobSpec{
		Payload:     ClassificationPayload{EmailID: "e-1", Content: "text"},
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	o.Tick(context.Background())

	ev := waitEvent(t, o)
	assert.Equal(t, EventJobFailed, ev.Type)
	assert.False(t, ev.WillRetry)
	assert.Equal(t, 1, stub.calls())

	status, ok := o.GetJobStatus(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, status.Status)
	assert.Contains(t, status.Error, "422")
}

func TestOrchestrator_UnknownKindFailsWithoutRetry(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MinWorkers: 1, MaxWorkers: 1}, &stubInference{})

	id, err := o.SubmitJob(JobSpec{Payload: bogusPayload{}, MaxAttempts: 3})
	require.NoError(t, err)

	o.Tick(context.Background())

	ev := waitEvent(t, o)
	assert.Equal(t, EventJobFailed, ev.Type)
	assert.False(t, ev.WillRetry)
	assert.Equal(t, 1, ev.Job.Attempts)

	status, ok := o.GetJobStatus(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, status.Status)
}

func TestOrchestrator_ScalesUpUnderBacklog(t *testing.T) {
	release := make(chan struct{})
	stub := &stubInference{
		classifyFn: func(ctx context.Context) (*ai.Classification, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return &ai.Classification{Category: "primary"}, nil
		},
	}
	o, _ := newTestOrchestrator(t, Config{MinWorkers: 2, MaxWorkers: 6}, stub)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := o.SubmitJob(JobSpec{Payload: ClassificationPayload{EmailID: fmt.Sprintf("e-%d", i), Content: "x"}})
		require.NoError(t, err)
	}

	// Backlog of 5 against 2 workers crosses the 2x threshold; one tick
	// adds exactly one worker, and all three pick up a job.
	require.Equal(t, 2, o.ActiveWorkers())
	o.Tick(ctx)
	assert.Equal(t, 3, o.ActiveWorkers())
	assert.Equal(t, 3, o.Stats().ProcessingCount)

	// The remaining backlog of 2 does not cross the threshold against 3
	// busy workers, so the pool holds steady.
	o.Tick(ctx)
	assert.Equal(t, 3, o.ActiveWorkers())

	close(release)
	require.Eventually(t, func() bool {
		o.Tick(ctx)
		return o.Stats().CompletedCount == 5
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOrchestrator_ScalesDownToMinimumWhenDrained(t *testing.T) {
	release := make(chan struct{})
	stub := &stubInference{
		classifyFn: func(ctx context.Context) (*ai.Classification, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return &ai.Classification{Category: "primary"}, nil
		},
	}
	cfg := Config{
		MinWorkers: 2,
		MaxWorkers: 4,
		// A single processed job marks a worker ready for retirement.
		Worker: WorkerConfig{MaxJobs: 1},
	}
	o, _ := newTestOrchestrator(t, cfg, stub)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := o.SubmitJob(JobSpec{Payload: ClassificationPayload{EmailID: fmt.Sprintf("e-%d", i), Content: "x"}})
		require.NoError(t, err)
	}

	// Grow to the ceiling: each tick adds at most one worker while the
	// backlog stays above the threshold.
	o.Tick(ctx)
	require.Equal(t, 3, o.ActiveWorkers())
	o.Tick(ctx)
	o.Tick(ctx)
	require.Equal(t, 4, o.ActiveWorkers())

	// Drain everything.
	close(release)
	require.Eventually(t, func() bool {
		o.Tick(ctx)
		return o.Stats().CompletedCount == 10
	}, 2*time.Second, 5*time.Millisecond)

	// With an empty queue and every worker past its job cap, scale-down
	// retires workers back to the floor but never below it.
	require.Eventually(t, func() bool {
		o.Tick(ctx)
		return o.ActiveWorkers() == 2
	}, 2*time.Second, 5*time.Millisecond)

	o.Tick(ctx)
	assert.Equal(t, 2, o.ActiveWorkers())
}

func TestOrchestrator_StopDrainsInFlightJobToCompletion(t *testing.T) {
	release := make(chan struct{})
	stub := &stubInference{
		classifyFn: func(ctx context.Context) (*ai.Classification, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-release:
			}
			return &ai.Classification{Category: "primary"}, nil
		},
	}

	// Real clock and a fast tick so the scheduling loop itself assigns
	// the job, then Stop races the in-flight inference call.
	cfg := Config{
		MinWorkers:   1,
		MaxWorkers:   1,
		TickInterval: 10 * time.Millisecond,
		Worker:       WorkerConfig{GracePeriod: 2 * time.Second},
	}
	o := New(cfg, NewRegistry(stub), nil, nil)
	require.NoError(t, o.Start(context.Background()))

	id, err := o.SubmitJob(JobSpec{Payload: ClassificationPayload{EmailID: "e-1", Content: "x"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return o.Stats().ProcessingCount == 1
	}, 2*time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()
	o.Stop()

	// The drained call finishes and lands in the completed registry,
	// never in the retry heap or the failed registry.
	require.Eventually(t, func() bool {
		status, ok := o.GetJobStatus(id)
		return ok && status.Status == StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	stats := o.Stats()
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Zero(t, stats.FailedCount)

	ev := waitEvent(t, o)
	assert.Equal(t, EventJobCompleted, ev.Type)
	assert.Equal(t, id, ev.Job.ID)
}

func TestOrchestrator_StatusForPendingJobIsNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{MinWorkers: 1, MaxWorkers: 1}, &stubInference{})

	_, ok := o.GetJobStatus("no-such-job")
	assert.False(t, ok)
}
