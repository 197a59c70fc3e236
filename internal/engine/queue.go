package engine

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Queue configuration defaults.
const (
	defaultMaxAttempts      = 3
	defaultBackoffBase      = 1 * time.Second
	defaultBackoffCap       = 30 * time.Second
	defaultRegistryCapacity = 1000
	defaultRegistryMaxAge   = 24 * time.Hour
)

// QueueConfig holds the tunables of the job queue.
type QueueConfig struct {
	// MaxAttempts is the default attempt budget for jobs that don't set one.
	MaxAttempts int
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration
	// BackoffCap bounds the exponential retry delay.
	BackoffCap time.Duration
	// RegistryCapacity bounds the completed and failed registries; the
	// oldest-inserted entry is evicted when the bound is exceeded.
	RegistryCapacity int
	// RegistryMaxAge bounds how long terminal entries survive the sweep.
	RegistryMaxAge time.Duration
}

func (c *QueueConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.RegistryCapacity <= 0 {
		c.RegistryCapacity = defaultRegistryCapacity
	}
	if c.RegistryMaxAge <= 0 {
		c.RegistryMaxAge = defaultRegistryMaxAge
	}
}

// QueueSizes reports pending list depths per priority class.
type QueueSizes struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Queue holds pending, in-flight and terminal jobs. A job id lives in
// exactly one of {a pending list, the retry heap, processing, completed,
// failed} at any instant. All state is guarded by a single mutex; there is
// no blocking dequeue, the orchestrator polls once per tick.
type Queue struct {
	cfg    QueueConfig
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	pending    map[Priority][]*Job
	retries    retryHeap
	processing map[string]*Job
	completed  map[string]*Job
	failed     map[string]*Job
	// insertion order of the terminal registries, for capacity eviction
	completedOrder []string
	failedOrder    []string

	totalCompleted int
	totalFailed    int
	avgProcessing  time.Duration
}

// NewQueue creates an empty queue.
func NewQueue(cfg QueueConfig, clk clock.Clock, logger *slog.Logger) *Queue {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pending := make(map[Priority][]*Job, len(priorityOrder))
	for _, p := range priorityOrder {
		pending[p] = nil
	}

	return &Queue{
		cfg:        cfg,
		clock:      clk,
		logger:     logger,
		pending:    pending,
		processing: make(map[string]*Job),
		completed:  make(map[string]*Job),
		failed:     make(map[string]*Job),
	}
}

// Enqueue creates a job from spec and appends it to the tail of its
// priority list. It always succeeds and returns the generated job id.
func (q *Queue) Enqueue(spec JobSpec) string {
	priority := spec.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.MaxAttempts
	}

	job := &Job{
		ID:          uuid.New().String(),
		Payload:     spec.Payload,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		CreatedAt:   q.clock.Now(),
	}

	q.mu.Lock()
	q.pending[priority] = append(q.pending[priority], job)
	q.mu.Unlock()

	q.logger.Debug("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Payload.Kind())),
		slog.String("priority", string(priority)),
	)

	return job.ID
}

// Dequeue pops the head of the first non-empty pending list, high before
// medium before low, and moves the job into the processing registry.
// Returns nil when all lists are empty.
func (q *Queue) Dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range priorityOrder {
		lst := q.pending[p]
		if len(lst) == 0 {
			continue
		}

		job := lst[0]
		lst[0] = nil
		q.pending[p] = lst[1:]

		job.StartedAt = q.clock.Now()
		q.processing[job.ID] = job
		return job
	}

	return nil
}

// MarkCompleted moves a processing job into the completed registry and
// records its processing time. The returned snapshot is safe to hand to
// event listeners. ok is false when the id is not currently processing.
func (q *Queue) MarkCompleted(jobID string, result any) (snapshot Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.processing[jobID]
	if !ok {
		return Job{}, false
	}
	delete(q.processing, jobID)

	now := q.clock.Now()
	job.CompletedAt = now
	job.Result = result

	q.totalCompleted++
	elapsed := now.Sub(job.StartedAt)
	q.avgProcessing += (elapsed - q.avgProcessing) / time.Duration(q.totalCompleted)

	q.completed[jobID] = job
	q.completedOrder = append(q.completedOrder, jobID)
	q.evictLocked(q.completed, &q.completedOrder)

	return *job, true
}

// MarkFailed records a failure of a processing job. When retry is true and
// the attempt budget is not exhausted, the job is parked in the retry heap
// and re-enters the tail of its priority list once the backoff delay has
// elapsed. Otherwise the job lands in the failed registry permanently.
// The returned snapshot is safe to hand to event listeners; willRetry
// reports whether a retry was scheduled. ok is false when the id is not
// currently processing.
func (q *Queue) MarkFailed(jobID string, jobErr error, retry bool) (snapshot Job, willRetry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.processing[jobID]
	if !ok {
		return Job{}, false, false
	}
	delete(q.processing, jobID)

	job.Attempts++
	if jobErr != nil {
		job.ErrorMsg = jobErr.Error()
	}

	if retry && job.Attempts < job.MaxAttempts {
		delay := q.backoff(job.Attempts)
		heap.Push(&q.retries, &retryEntry{
			job:     job,
			readyAt: q.clock.Now().Add(delay),
		})

		q.logger.Info("Job scheduled for retry",
			slog.String("job_id", job.ID),
			slog.Int("attempt", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("backoff", delay),
		)
		return *job, true, true
	}

	job.FailedAt = q.clock.Now()
	q.totalFailed++
	q.failed[jobID] = job
	q.failedOrder = append(q.failedOrder, jobID)
	q.evictLocked(q.failed, &q.failedOrder)

	q.logger.Warn("Job failed permanently",
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempts),
		slog.String("error", job.ErrorMsg),
	)
	return *job, false, true
}

// backoff computes min(base * 2^(attempts-1), cap).
func (q *Queue) backoff(attempts int) time.Duration {
	delay := q.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= q.cfg.BackoffCap {
			return q.cfg.BackoffCap
		}
	}
	if delay > q.cfg.BackoffCap {
		return q.cfg.BackoffCap
	}
	return delay
}

// PromoteDue moves retry-heap entries whose backoff has elapsed back to the
// tail of their priority list. Called once per scheduling tick. Returns the
// number of jobs promoted.
func (q *Queue) PromoteDue() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	promoted := 0
	for q.retries.Len() > 0 && !q.retries[0].readyAt.After(now) {
		entry := heap.Pop(&q.retries).(*retryEntry)
		job := entry.job
		job.StartedAt = time.Time{}
		q.pending[job.Priority] = append(q.pending[job.Priority], job)
		promoted++
	}

	return promoted
}

// GetJob returns a snapshot of the job and its lifecycle stage, looking up
// processing, then completed, then failed. Jobs still pending are not
// addressable by id.
func (q *Queue) GetJob(jobID string) (Job, Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.processing[jobID]; ok {
		return *job, StatusProcessing, true
	}
	if job, ok := q.completed[jobID]; ok {
		return *job, StatusCompleted, true
	}
	if job, ok := q.failed[jobID]; ok {
		return *job, StatusFailed, true
	}
	return Job{}, "", false
}

// Sweep removes completed/failed entries older than the configured max age.
// Keys are snapshotted before deleting. Returns the number of evictions.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.clock.Now().Add(-q.cfg.RegistryMaxAge)
	removed := 0
	removed += sweepLocked(q.completed, &q.completedOrder, func(j *Job) bool {
		return j.CompletedAt.Before(cutoff)
	})
	removed += sweepLocked(q.failed, &q.failedOrder, func(j *Job) bool {
		return j.FailedAt.Before(cutoff)
	})

	if removed > 0 {
		q.logger.Info("Swept aged job records", slog.Int("removed", removed))
	}
	return removed
}

// evictLocked drops the oldest-inserted entries while the registry exceeds
// its capacity bound. Caller holds q.mu.
func (q *Queue) evictLocked(registry map[string]*Job, order *[]string) {
	for len(registry) > q.cfg.RegistryCapacity && len(*order) > 0 {
		oldest := (*order)[0]
		*order = (*order)[1:]
		delete(registry, oldest)
	}
}

// sweepLocked removes registry entries matching expired, keeping the
// insertion-order slice consistent.
func sweepLocked(registry map[string]*Job, order *[]string, expired func(*Job) bool) int {
	stale := make([]string, 0)
	for id, job := range registry {
		if expired(job) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(registry, id)
	}
	if len(stale) > 0 {
		kept := (*order)[:0]
		for _, id := range *order {
			if _, ok := registry[id]; ok {
				kept = append(kept, id)
			}
		}
		*order = kept
	}
	return len(stale)
}

// Sizes reports the pending list depths.
func (q *Queue) Sizes() QueueSizes {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueSizes{
		High:   len(q.pending[PriorityHigh]),
		Medium: len(q.pending[PriorityMedium]),
		Low:    len(q.pending[PriorityLow]),
	}
}

// PendingCount is the total depth across all pending lists. Jobs waiting
// out a retry backoff are not counted until promoted.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	for _, p := range priorityOrder {
		total += len(q.pending[p])
	}
	return total
}

// ProcessingCount is the number of in-flight jobs.
func (q *Queue) ProcessingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.processing)
}

// Totals returns the monotonic completed/failed counters and the rolling
// average processing time.
func (q *Queue) Totals() (completed, failed int, avg time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalCompleted, q.totalFailed, q.avgProcessing
}
