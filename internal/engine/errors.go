package engine

import "errors"

var (
	// ErrNotRunning is returned when submitting to a stopped engine.
	ErrNotRunning = errors.New("engine is not running")

	// ErrNilPayload is returned when a job spec carries no payload.
	ErrNilPayload = errors.New("job payload is nil")

	// ErrUnknownJobKind is returned when no handler is registered for a
	// payload's kind. Jobs failing with this error are never retried.
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrWorkerStopped is returned when a job is handed to a stopped worker.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrWorkerBusy is returned when a job is handed to a worker that
	// already holds one.
	ErrWorkerBusy = errors.New("worker already processing a job")
)
