package dto

import (
	"encoding/json"
	"time"
)

// SubmitJobRequest is the body of POST /api/v1/jobs. Payload is decoded
// per Kind by the handler.
type SubmitJobRequest struct {
	Kind        string          `json:"kind" binding:"required"`
	Payload     json.RawMessage `json:"payload" binding:"required"`
	Priority    string          `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
}

// ClassificationPayload is the payload body for classification jobs.
type ClassificationPayload struct {
	EmailID string `json:"email_id"`
	Content string `json:"content" binding:"required"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
}

// DraftPayload is the payload body for draft-generation jobs.
type DraftPayload struct {
	EmailID string `json:"email_id"`
	Content string `json:"content" binding:"required"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Context string `json:"context"`
}

// ChatPayload is the payload body for chat-response jobs.
type ChatPayload struct {
	Input   string `json:"input" binding:"required"`
	Context string `json:"context"`
}

// BatchItem is one email inside a batch-analysis payload.
type BatchItem struct {
	EmailID string `json:"email_id"`
	Content string `json:"content"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
}

// BatchPayload is the payload body for batch-analysis jobs.
type BatchPayload struct {
	Items []BatchItem `json:"items" binding:"required"`
}

// SummarizationPayload is the payload body for summarization jobs.
type SummarizationPayload struct {
	Content   string `json:"content" binding:"required"`
	MaxLength int    `json:"max_length"`
}

// SubmitJobResponse echoes the accepted job.
type SubmitJobResponse struct {
	JobID    string `json:"job_id"`
	Kind     string `json:"kind"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// JobStatusResponse is the body of GET /api/v1/jobs/:job_id.
type JobStatusResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Kind      string    `json:"kind"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ListHistoryRequest holds the query parameters of GET /api/v1/history.
type ListHistoryRequest struct {
	Kind     string `form:"kind"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// HistoryDTO is one archived job outcome.
type HistoryDTO struct {
	JobID      string          `json:"job_id"`
	Kind       string          `json:"kind"`
	Priority   string          `json:"priority"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  string          `json:"created_at"`
	FinishedAt string          `json:"finished_at"`
}

// ListHistoryResponse is the body of GET /api/v1/history.
type ListHistoryResponse struct {
	Records    []HistoryDTO `json:"records"`
	NextCursor string       `json:"next_cursor,omitempty"`
}
