package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Worker lifecycle defaults.
const (
	defaultWorkerGracePeriod = 30 * time.Second
	defaultWorkerMaxJobs     = 100
	defaultWorkerIdleTimeout = 5 * time.Minute
)

// WorkerConfig holds per-worker lifecycle tunables.
type WorkerConfig struct {
	// GracePeriod bounds how long Stop waits for an in-flight job.
	GracePeriod time.Duration
	// MaxJobs is the processed-job count after which the worker signals
	// it should be retired.
	MaxJobs int
	// IdleTimeout is the idle duration after which the worker signals it
	// should be retired.
	IdleTimeout time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultWorkerGracePeriod
	}
	if c.MaxJobs <= 0 {
		c.MaxJobs = defaultWorkerMaxJobs
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultWorkerIdleTimeout
	}
}

// WorkerStats is a point-in-time snapshot of one worker.
type WorkerStats struct {
	ID           int       `json:"id"`
	Running      bool      `json:"running"`
	CurrentJobID string    `json:"current_job_id,omitempty"`
	Processed    int       `json:"processed"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// Worker is a logical concurrency slot that executes at most one job at a
// time. Workers never self-destruct; the orchestrator creates and stops
// them, consulting ShouldRestart to decide when to retire one.
type Worker struct {
	id       int
	cfg      WorkerConfig
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger

	mu           sync.Mutex
	running      bool
	current      *Job
	inflight     chan struct{}
	processed    int
	lastActivity time.Time
	createdAt    time.Time
}

// NewWorker creates a stopped worker.
func NewWorker(id int, cfg WorkerConfig, registry *Registry, clk clock.Clock, logger *slog.Logger) *Worker {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	now := clk.Now()
	return &Worker{
		id:           id,
		cfg:          cfg,
		registry:     registry,
		clock:        clk,
		logger:       logger.With(slog.Int("worker_id", id)),
		lastActivity: now,
		createdAt:    now,
	}
}

// ID returns the worker's numeric id.
func (w *Worker) ID() int { return w.id }

// Start marks the worker as running and eligible for job assignment.
func (w *Worker) Start() {
	w.mu.Lock()
	w.running = true
	w.lastActivity = w.clock.Now()
	w.mu.Unlock()

	w.logger.Debug("Worker started")
}

// Stop marks the worker as stopped. When a job is in flight, Stop waits up
// to the grace period for it to finish; it never aborts the inference call.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.running = false
	inflight := w.inflight
	w.mu.Unlock()

	if inflight == nil {
		w.logger.Debug("Worker stopped")
		return
	}

	select {
	case <-inflight:
		w.logger.Debug("Worker stopped after draining in-flight job")
	case <-w.clock.After(w.cfg.GracePeriod):
		w.logger.Warn("Worker stop grace period exceeded, job still in flight",
			slog.Duration("grace_period", w.cfg.GracePeriod),
		)
	}
}

// Idle reports whether the worker is running with no job in flight.
func (w *Worker) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running && w.current == nil
}

// ShouldRestart signals that the orchestrator should retire this worker:
// either the processed-job cap is reached or the worker has been idle past
// its timeout. It is a signal, not an action.
func (w *Worker) ShouldRestart() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.processed >= w.cfg.MaxJobs {
		return true
	}
	return w.current == nil && w.clock.Now().Sub(w.lastActivity) > w.cfg.IdleTimeout
}

// Assign reserves the worker for a job before execution starts, so the
// scheduler's idle bookkeeping is consistent within a tick.
func (w *Worker) Assign(job *Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return ErrWorkerStopped
	}
	if w.current != nil {
		return ErrWorkerBusy
	}
	w.current = job
	w.inflight = make(chan struct{})
	w.lastActivity = w.clock.Now()
	return nil
}

// Process dispatches the job to its kind handler and returns the handler
// result. The job may have been reserved through Assign already; an
// assigned job always runs, even when Stop raced in between, so the
// in-flight drain in Stop can observe it finish. The processed counter
// only advances on success.
func (w *Worker) Process(ctx context.Context, job *Job) (any, error) {
	w.mu.Lock()
	switch {
	case w.current == job:
	case !w.running:
		w.mu.Unlock()
		return nil, ErrWorkerStopped
	case w.current != nil:
		w.mu.Unlock()
		return nil, ErrWorkerBusy
	default:
		w.current = job
		w.inflight = make(chan struct{})
		w.lastActivity = w.clock.Now()
	}
	inflight := w.inflight
	w.mu.Unlock()

	w.logger.Debug("Worker picked up job",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Payload.Kind())),
	)

	result, err := w.dispatch(ctx, job)

	w.mu.Lock()
	w.current = nil
	w.inflight = nil
	w.lastActivity = w.clock.Now()
	if err == nil {
		w.processed++
	}
	w.mu.Unlock()
	close(inflight)

	return result, err
}

func (w *Worker) dispatch(ctx context.Context, job *Job) (any, error) {
	handler, err := w.registry.Get(job.Payload.Kind())
	if err != nil {
		return nil, err
	}
	return handler.Handle(ctx, job)
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := WorkerStats{
		ID:           w.id,
		Running:      w.running,
		Processed:    w.processed,
		LastActivity: w.lastActivity,
		CreatedAt:    w.createdAt,
	}
	if w.current != nil {
		stats.CurrentJobID = w.current.ID
	}
	return stats
}
