package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mailmind-app/mailmind-be/internal/engine"
	"github.com/mailmind-app/mailmind-be/shared/rabbitmq"
)

// Routing keys on the job events topic exchange. The WebSocket broadcaster
// binds its queues to these.
const (
	RoutingKeyCompleted = "job.completed"
	RoutingKeyFailed    = "job.failed"
)

// message is the wire shape of one job event.
type message struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id"`
	Kind      string          `json:"kind"`
	Priority  string          `json:"priority"`
	Attempts  int             `json:"attempts"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	WillRetry bool            `json:"will_retry,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher fans engine outcome events out to RabbitMQ. Delivery is
// fire-and-forget; a publish error is logged and dropped, never propagated
// back into the engine.
type Publisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewPublisher creates a publisher over the shared RabbitMQ client.
func NewPublisher(client *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Handle publishes one engine event.
func (p *Publisher) Handle(ctx context.Context, ev engine.Event) {
	msg := message{
		Type:      string(ev.Type),
		JobID:     ev.Job.ID,
		Kind:      string(ev.Job.Payload.Kind()),
		Priority:  string(ev.Job.Priority),
		Attempts:  ev.Job.Attempts,
		Error:     ev.Error,
		WillRetry: ev.WillRetry,
		Timestamp: time.Now(),
	}

	if ev.Result != nil {
		data, err := json.Marshal(ev.Result)
		if err != nil {
			p.logger.Warn("Failed to encode job result for notification",
				slog.String("job_id", ev.Job.ID),
				slog.Any("error", err),
			)
		} else {
			msg.Result = data
		}
	}

	routingKey := RoutingKeyCompleted
	if ev.Type == engine.EventJobFailed {
		routingKey = RoutingKeyFailed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Failed to encode event message",
			slog.String("job_id", ev.Job.ID),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.Publish(ctx, routingKey, body); err != nil {
		p.logger.Error("Failed to publish job event",
			slog.String("job_id", ev.Job.ID),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
	}
}
