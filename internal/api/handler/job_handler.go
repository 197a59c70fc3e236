package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mailmind-app/mailmind-be/internal/api/dto"
	"github.com/mailmind-app/mailmind-be/internal/engine"
)

// SubmitJob handles POST /api/v1/jobs
// Accepts a job for asynchronous processing and returns its id immediately
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	payload, err := decodePayload(req.Kind, req.Payload)
	if err != nil {
		h.logger.Error("Invalid job payload",
			slog.String("kind", req.Kind),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	spec := engine.JobSpec{
		Payload:     payload,
		Priority:    engine.Priority(req.Priority),
		MaxAttempts: req.MaxAttempts,
	}

	jobID, err := h.engine.SubmitJob(spec)
	if err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Engine is not running",
			})
			return
		}
		h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = string(engine.PriorityMedium)
	}

	c.JSON(http.StatusAccepted, dto.SubmitJobResponse{
		JobID:    jobID,
		Kind:     req.Kind,
		Priority: priority,
		Status:   string(engine.StatusQueued),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the current status of a job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	status, ok := h.engine.GetJobStatus(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		JobID:     status.ID,
		Status:    string(status.Status),
		Kind:      string(status.Kind),
		Priority:  string(status.Priority),
		CreatedAt: status.CreatedAt,
		Attempts:  status.Attempts,
		Result:    status.Result,
		Error:     status.Error,
	})
}

// GetStats handles GET /api/v1/stats
// Returns aggregate engine statistics for the dashboard
func (h *JobHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

// Health handles GET /health
// Reports unhealthy when the database is unreachable
func (h *JobHandler) Health(c *gin.Context) {
	if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "mailmind-ai-service",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "mailmind-ai-service",
	})
}

// decodePayload parses the kind-specific payload body into its engine
// payload variant.
func decodePayload(kind string, raw json.RawMessage) (engine.Payload, error) {
	switch engine.Kind(kind) {
	case engine.KindClassification:
		var p dto.ClassificationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid classification payload: %w", err)
		}
		if p.Content == "" {
			return nil, fmt.Errorf("classification payload requires content")
		}
		return engine.ClassificationPayload{
			EmailID: p.EmailID,
			Content: p.Content,
			Subject: p.Subject,
			Sender:  p.Sender,
		}, nil

	case engine.KindDraftGeneration:
		var p dto.DraftPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid draft payload: %w", err)
		}
		if p.Content == "" {
			return nil, fmt.Errorf("draft payload requires content")
		}
		return engine.DraftPayload{
			EmailID: p.EmailID,
			Content: p.Content,
			Subject: p.Subject,
			Sender:  p.Sender,
			Context: p.Context,
		}, nil

	case engine.KindChatResponse:
		var p dto.ChatPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid chat payload: %w", err)
		}
		if p.Input == "" {
			return nil, fmt.Errorf("chat payload requires input")
		}
		return engine.ChatPayload{
			Input:   p.Input,
			Context: p.Context,
		}, nil

	case engine.KindBatchAnalysis:
		var p dto.BatchPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid batch payload: %w", err)
		}
		if len(p.Items) == 0 {
			return nil, fmt.Errorf("batch payload requires at least one item")
		}
		items := make([]engine.BatchItem, len(p.Items))
		for i, item := range p.Items {
			items[i] = engine.BatchItem{
				EmailID: item.EmailID,
				Content: item.Content,
				Subject: item.Subject,
				Sender:  item.Sender,
			}
		}
		return engine.BatchPayload{Items: items}, nil

	case engine.KindSummarization:
		var p dto.SummarizationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid summarization payload: %w", err)
		}
		if p.Content == "" {
			return nil, fmt.Errorf("summarization payload requires content")
		}
		return engine.SummarizationPayload{
			Content:   p.Content,
			MaxLength: p.MaxLength,
		}, nil
	}

	return nil, fmt.Errorf("unknown job kind: %s", kind)
}
