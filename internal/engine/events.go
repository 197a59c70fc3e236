package engine

// EventType discriminates engine outcome events.
type EventType string

const (
	// EventJobCompleted is emitted when a job finishes successfully.
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed is emitted on every failed attempt; WillRetry tells
	// listeners whether the failure is terminal.
	EventJobFailed EventType = "job_failed"
)

// Event is an outcome signal published on the engine's event channel.
// Delivery is fire-and-forget: when no listener keeps up, events are
// dropped rather than blocking the engine.
type Event struct {
	Type      EventType
	Job       Job
	Result    any
	Error     string
	WillRetry bool
}
