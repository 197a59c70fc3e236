package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mailmind-app/mailmind-be/internal/ai"
)

// Orchestrator defaults.
const (
	defaultMinWorkers       = 2
	defaultMaxWorkers       = 10
	defaultTickInterval     = 1 * time.Second
	defaultSweepInterval    = 1 * time.Hour
	defaultInferenceTimeout = 2 * time.Minute
	defaultEventBuffer      = 256

	// scaleUpFactor: scale up when pending depth exceeds this many jobs
	// per active worker.
	scaleUpFactor = 2
)

// Config holds orchestrator configuration.
type Config struct {
	// MinWorkers is the floor of the worker set, created at start.
	MinWorkers int
	// MaxWorkers is the ceiling the autoscaler never exceeds.
	MaxWorkers int
	// TickInterval is the period of the scheduling loop.
	TickInterval time.Duration
	// SweepInterval is the period of the terminal-registry age sweep.
	SweepInterval time.Duration
	// InferenceTimeout is the per-job deadline applied around handler
	// execution so a hung upstream call cannot occupy a worker forever.
	InferenceTimeout time.Duration
	// EventBuffer is the capacity of the outcome event channel.
	EventBuffer int

	Queue  QueueConfig
	Worker WorkerConfig
}

func (c *Config) applyDefaults() {
	if c.MinWorkers <= 0 {
		c.MinWorkers = defaultMinWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = defaultMaxWorkers
		if c.MaxWorkers < c.MinWorkers {
			c.MaxWorkers = c.MinWorkers
		}
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.InferenceTimeout <= 0 {
		c.InferenceTimeout = defaultInferenceTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
}

// Stats is the aggregate engine snapshot served by the stats API.
type Stats struct {
	QueueSizes            QueueSizes    `json:"queue_sizes"`
	ProcessingCount       int           `json:"processing_count"`
	CompletedCount        int           `json:"completed_count"`
	FailedCount           int           `json:"failed_count"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	Workers               []WorkerStats `json:"workers"`
	Uptime                time.Duration `json:"uptime"`
}

// Orchestrator owns the queue and the worker set. A periodic tick promotes
// due retries, runs the autoscaling policy, and assigns one job to each
// idle worker. Job execution is fire-and-forget from the tick's
// perspective; outcomes flow back through the queue and out on the event
// channel.
type Orchestrator struct {
	cfg      Config
	queue    *Queue
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger

	mu           sync.Mutex
	running      bool
	workers      map[int]*Worker
	nextWorkerID int
	startedAt    time.Time
	cancel       context.CancelFunc

	events chan Event
	loopWG sync.WaitGroup
}

// New creates a stopped orchestrator.
func New(cfg Config, registry *Registry, clk clock.Clock, logger *slog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		cfg:      cfg,
		queue:    NewQueue(cfg.Queue, clk, logger),
		registry: registry,
		clock:    clk,
		logger:   logger,
		workers:  make(map[int]*Worker),
		events:   make(chan Event, cfg.EventBuffer),
	}
}

// Queue exposes the underlying job queue.
func (o *Orchestrator) Queue() *Queue { return o.queue }

// Events returns the outcome channel. It is never closed; outcomes of jobs
// still in flight during Stop may trail in after Stop returns.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Start creates the minimum worker set and begins the scheduling loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.startedAt = o.clock.Now()

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.MinWorkers; i++ {
		o.addWorkerLocked()
	}
	o.mu.Unlock()

	o.logger.Info("Engine started",
		slog.Int("min_workers", o.cfg.MinWorkers),
		slog.Int("max_workers", o.cfg.MaxWorkers),
		slog.Duration("tick_interval", o.cfg.TickInterval),
	)

	o.loopWG.Add(1)
	go o.run(loopCtx)

	return nil
}

// Stop cancels the scheduling loop and stops all workers, each respecting
// its own grace period. In-flight inference calls past the grace period
// complete into a discarded outcome.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	workers := make([]*Worker, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w)
	}
	o.workers = make(map[int]*Worker)
	o.mu.Unlock()

	o.logger.Info("Stopping engine...")

	if cancel != nil {
		cancel()
	}
	o.loopWG.Wait()

	var wg sync.WaitGroup
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()

	o.logger.Info("Engine stopped")
}

// SubmitJob enqueues a job and returns its id synchronously; it never
// blocks on processing. Fails fast when the engine is stopped.
func (o *Orchestrator) SubmitJob(spec JobSpec) (string, error) {
	if spec.Payload == nil {
		return "", ErrNilPayload
	}
	if spec.Priority != "" && !ValidPriority(spec.Priority) {
		return "", errors.New("invalid priority: " + string(spec.Priority))
	}

	// Check-and-enqueue under one lock, so a submit racing Stop cannot
	// land a job in a stopped engine's queue.
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return "", ErrNotRunning
	}

	return o.queue.Enqueue(spec), nil
}

// GetJobStatus derives the status snapshot for a job id. ok is false for
// unknown ids and for jobs still pending in a priority list.
func (o *Orchestrator) GetJobStatus(jobID string) (JobStatus, bool) {
	job, stage, ok := o.queue.GetJob(jobID)
	if !ok {
		return JobStatus{}, false
	}

	status := JobStatus{
		ID:        job.ID,
		Status:    stage,
		Kind:      job.Payload.Kind(),
		Priority:  job.Priority,
		CreatedAt: job.CreatedAt,
		Attempts:  job.Attempts,
	}
	switch stage {
	case StatusCompleted:
		status.Result = job.Result
	case StatusFailed:
		status.Error = job.ErrorMsg
	}
	return status, true
}

// Stats returns an aggregate snapshot of the engine.
func (o *Orchestrator) Stats() Stats {
	completed, failed, avg := o.queue.Totals()

	o.mu.Lock()
	workerStats := make([]WorkerStats, 0, len(o.workers))
	for _, w := range o.workers {
		workerStats = append(workerStats, w.Stats())
	}
	var uptime time.Duration
	if o.running {
		uptime = o.clock.Now().Sub(o.startedAt)
	}
	o.mu.Unlock()

	return Stats{
		QueueSizes:            o.queue.Sizes(),
		ProcessingCount:       o.queue.ProcessingCount(),
		CompletedCount:        completed,
		FailedCount:           failed,
		AverageProcessingTime: avg,
		Workers:               workerStats,
		Uptime:                uptime,
	}
}

// ActiveWorkers is the current size of the worker set.
func (o *Orchestrator) ActiveWorkers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.workers)
}

// run drives the scheduling tick and the registry sweep.
func (o *Orchestrator) run(ctx context.Context) {
	defer o.loopWG.Done()

	ticker := o.clock.Ticker(o.cfg.TickInterval)
	defer ticker.Stop()
	sweeper := o.clock.Ticker(o.cfg.SweepInterval)
	defer sweeper.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick(ctx)
		case <-sweeper.C:
			o.queue.Sweep()
		}
	}
}

// Tick runs one scheduling pass: promote due retries, autoscale, then hand
// one job to each idle worker. Exported so tests can drive the scheduler
// without waiting on the ticker.
func (o *Orchestrator) Tick(ctx context.Context) {
	o.queue.PromoteDue()
	o.autoscale()

	o.mu.Lock()
	idle := make([]*Worker, 0, len(o.workers))
	for _, w := range o.workers {
		if w.Idle() {
			idle = append(idle, w)
		}
	}
	o.mu.Unlock()

	for _, w := range idle {
		job := o.queue.Dequeue()
		if job == nil {
			return
		}

		// Reserve the worker before handing off, so a later tick cannot
		// consider it idle while the job goroutine is still spinning up.
		if err := w.Assign(job); err != nil {
			o.queue.MarkFailed(job.ID, err, true)
			continue
		}
		go o.runJob(ctx, w, job)
	}
}

// runJob executes one job on a worker and routes the outcome back into the
// queue and out on the event channel.
func (o *Orchestrator) runJob(ctx context.Context, w *Worker, job *Job) {
	// The scheduling loop's cancellation must not propagate here: Stop
	// drains in-flight inference calls rather than aborting them. Only
	// the inference deadline bounds the call.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.InferenceTimeout)
	defer cancel()

	result, err := w.Process(jobCtx, job)
	if err != nil {
		// Unknown-kind errors and permanent inference rejections can
		// never succeed, so they skip the retry path and land in the
		// failed registry immediately.
		retryable := !errors.Is(err, ErrUnknownJobKind) && !ai.Permanent(err)
		snapshot, willRetry, ok := o.queue.MarkFailed(job.ID, err, retryable)
		if !ok {
			return
		}
		o.publish(Event{
			Type:      EventJobFailed,
			Job:       snapshot,
			Error:     err.Error(),
			WillRetry: willRetry,
		})
		return
	}

	snapshot, ok := o.queue.MarkCompleted(job.ID, result)
	if !ok {
		return
	}
	o.publish(Event{
		Type:   EventJobCompleted,
		Job:    snapshot,
		Result: result,
	})
}

// publish sends an event without blocking; listeners that fall behind lose
// events rather than stalling the engine.
func (o *Orchestrator) publish(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("Event channel full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.String("job_id", ev.Job.ID),
		)
	}
}

// autoscale applies the scaling policy once. Scale up adds exactly one
// worker when pending depth exceeds scaleUpFactor times the active count.
// Scale down retires idle workers that signal ShouldRestart, never below
// the minimum.
func (o *Orchestrator) autoscale() {
	pending := o.queue.PendingCount()

	o.mu.Lock()
	active := len(o.workers)

	if pending > scaleUpFactor*active && active < o.cfg.MaxWorkers {
		w := o.addWorkerLocked()
		o.mu.Unlock()
		o.logger.Info("Scaled up worker pool",
			slog.Int("worker_id", w.ID()),
			slog.Int("active", active+1),
			slog.Int("pending", pending),
		)
		return
	}

	if pending == 0 && active > o.cfg.MinWorkers {
		budget := active - o.cfg.MinWorkers
		retired := make([]*Worker, 0, budget)
		for id, w := range o.workers {
			if len(retired) >= budget {
				break
			}
			if w.Idle() && w.ShouldRestart() {
				delete(o.workers, id)
				retired = append(retired, w)
			}
		}
		remaining := len(o.workers)
		o.mu.Unlock()

		for _, w := range retired {
			w.Stop()
			o.logger.Info("Scaled down worker pool",
				slog.Int("worker_id", w.ID()),
				slog.Int("active", remaining),
			)
		}
		return
	}

	o.mu.Unlock()
}

// addWorkerLocked creates and starts a worker. Caller holds o.mu.
func (o *Orchestrator) addWorkerLocked() *Worker {
	o.nextWorkerID++
	w := NewWorker(o.nextWorkerID, o.cfg.Worker, o.registry, o.clock, o.logger)
	w.Start()
	o.workers[w.ID()] = w
	return w
}
