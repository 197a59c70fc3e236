package handler

import (
	"context"
	"log/slog"

	"github.com/mailmind-app/mailmind-be/internal/engine"
	"github.com/mailmind-app/mailmind-be/internal/history"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Engine  *engine.Orchestrator
	History *history.Store
	DB      HealthChecker
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	engine  *engine.Orchestrator
	history *history.Store
	db      HealthChecker
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		engine:  deps.Engine,
		history: deps.History,
		db:      deps.DB,
	}
}
