package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailmind-app/mailmind-be/internal/api/dto"
	"github.com/mailmind-app/mailmind-be/internal/history"
)

// ListHistory handles GET /api/v1/history
// Lists archived job outcomes with filtering and keyset pagination
func (h *JobHandler) ListHistory(c *gin.Context) {
	var req dto.ListHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeHistoryCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	records, err := h.history.List(c.Request.Context(), history.Filter{
		Kind:     req.Kind,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list history", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list history",
		})
		return
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	response := make([]dto.HistoryDTO, len(records))
	for i, rec := range records {
		response[i] = dto.HistoryDTO{
			JobID:      rec.JobID,
			Kind:       rec.Kind,
			Priority:   rec.Priority,
			Status:     rec.Status,
			Attempts:   rec.Attempts,
			Result:     rec.Result,
			Error:      rec.Error,
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
			FinishedAt: rec.FinishedAt.Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		last := records[len(records)-1]
		nextCursor = EncodeHistoryCursor(&history.Cursor{
			FinishedAt: last.FinishedAt,
			JobID:      last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListHistoryResponse{
		Records:    response,
		NextCursor: nextCursor,
	})
}
