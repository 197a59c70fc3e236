package history

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mailmind-app/mailmind-be/internal/engine"
)

// Recorder converts terminal engine events into history records. Retryable
// failure events are skipped; a job is archived once it can no longer
// change state.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Handle archives one engine event if it is terminal.
func (r *Recorder) Handle(ctx context.Context, ev engine.Event) {
	if ev.Type == engine.EventJobFailed && ev.WillRetry {
		return
	}

	rec := &Record{
		JobID:     ev.Job.ID,
		Kind:      string(ev.Job.Payload.Kind()),
		Priority:  string(ev.Job.Priority),
		Attempts:  ev.Job.Attempts,
		CreatedAt: ev.Job.CreatedAt,
	}

	switch ev.Type {
	case engine.EventJobCompleted:
		rec.Status = string(engine.StatusCompleted)
		rec.FinishedAt = ev.Job.CompletedAt
		if ev.Result != nil {
			data, err := json.Marshal(ev.Result)
			if err != nil {
				r.logger.Warn("Failed to encode job result for history",
					slog.String("job_id", ev.Job.ID),
					slog.Any("error", err),
				)
			} else {
				rec.Result = data
			}
		}
	case engine.EventJobFailed:
		rec.Status = string(engine.StatusFailed)
		rec.FinishedAt = ev.Job.FailedAt
		rec.Error = ev.Error
	default:
		return
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.Error("Failed to archive job outcome",
			slog.String("job_id", ev.Job.ID),
			slog.Any("error", err),
		)
	}
}
