package engine

import (
	"time"
)

// Priority determines dequeue ordering across the pending lists.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// priorityOrder is the drain order of the pending lists.
var priorityOrder = [...]Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ValidPriority reports whether p is one of the known priority classes.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Kind identifies the type of AI work a job carries.
type Kind string

const (
	KindClassification  Kind = "classification"
	KindDraftGeneration Kind = "draft_generation"
	KindChatResponse    Kind = "chat_response"
	KindBatchAnalysis   Kind = "batch_analysis"
	KindSummarization   Kind = "summarization"
)

// Status is the externally visible lifecycle stage of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Payload is the sealed set of job payload variants. Each variant carries
// the kind-specific inputs for one inference capability; dispatch in the
// worker is an exhaustive type switch over these types.
type Payload interface {
	Kind() Kind
}

// ClassificationPayload asks for an email to be categorized.
type ClassificationPayload struct {
	EmailID string
	Content string
	Subject string
	Sender  string
}

func (ClassificationPayload) Kind() Kind { return KindClassification }

// DraftPayload asks for a reply draft to an email.
type DraftPayload struct {
	EmailID string
	Content string
	Subject string
	Sender  string
	Context string
}

func (DraftPayload) Kind() Kind { return KindDraftGeneration }

// ChatPayload asks for a conversational assistant response.
type ChatPayload struct {
	Input   string
	Context string
}

func (ChatPayload) Kind() Kind { return KindChatResponse }

// BatchItem is one email inside a batch-analysis job.
type BatchItem struct {
	EmailID string
	Content string
	Subject string
	Sender  string
}

// BatchPayload asks for a set of emails to be analyzed together.
// Items are processed in fixed-size concurrent chunks; one item failing
// does not fail the batch.
type BatchPayload struct {
	Items []BatchItem
}

func (BatchPayload) Kind() Kind { return KindBatchAnalysis }

// SummarizationPayload asks for a condensed version of a text.
type SummarizationPayload struct {
	Content   string
	MaxLength int
}

func (SummarizationPayload) Kind() Kind { return KindSummarization }

// JobSpec is what callers submit. Priority defaults to medium and
// MaxAttempts to the queue default when left zero.
type JobSpec struct {
	Payload     Payload
	Priority    Priority
	MaxAttempts int
}

// Job is a unit of AI work owned by the queue. All mutation happens under
// the queue lock; consumers outside the engine receive value copies.
type Job struct {
	ID          string
	Payload     Payload
	Priority    Priority
	Attempts    int
	MaxAttempts int

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	FailedAt    time.Time

	// Result holds the handler output once the job completes.
	Result any
	// ErrorMsg holds the last failure message, terminal or not.
	ErrorMsg string
}

// JobStatus is the snapshot returned by status queries.
type JobStatus struct {
	ID        string
	Status    Status
	Kind      Kind
	Priority  Priority
	CreatedAt time.Time
	Attempts  int
	Result    any
	Error     string
}
