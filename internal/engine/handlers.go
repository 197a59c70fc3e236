package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mailmind-app/mailmind-be/internal/ai"
)

// batchChunkSize is how many batch items are processed concurrently.
const batchChunkSize = 5

// Handler executes one job kind against the inference collaborator.
type Handler interface {
	Handle(ctx context.Context, job *Job) (any, error)
}

// Registry maps job kinds to handlers.
type Registry struct {
	handlers map[Kind]Handler
}

// NewRegistry creates a registry with the default handlers for all job
// kinds, backed by the given inference client.
func NewRegistry(client ai.Inference) *Registry {
	r := &Registry{handlers: make(map[Kind]Handler)}
	r.Register(KindClassification, &classificationHandler{client: client})
	r.Register(KindDraftGeneration, &draftHandler{client: client})
	r.Register(KindChatResponse, &chatHandler{client: client})
	r.Register(KindBatchAnalysis, &batchHandler{client: client})
	r.Register(KindSummarization, &summarizationHandler{client: client})
	return r
}

// Register adds a handler for a job kind.
func (r *Registry) Register(kind Kind, handler Handler) {
	r.handlers[kind] = handler
}

// Get returns the handler for a job kind.
func (r *Registry) Get(kind Kind) (Handler, error) {
	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobKind, kind)
	}
	return handler, nil
}

type classificationHandler struct {
	client ai.Inference
}

func (h *classificationHandler) Handle(ctx context.Context, job *Job) (any, error) {
	payload, ok := job.Payload.(ClassificationPayload)
	if !ok {
		return nil, fmt.Errorf("%w: expected classification payload, got %T", ErrUnknownJobKind, job.Payload)
	}
	return h.client.Classify(ctx, payload.Content, payload.Subject, payload.Sender)
}

type draftHandler struct {
	client ai.Inference
}

func (h *draftHandler) Handle(ctx context.Context, job *Job) (any, error) {
	payload, ok := job.Payload.(DraftPayload)
	if !ok {
		return nil, fmt.Errorf("%w: expected draft payload, got %T", ErrUnknownJobKind, job.Payload)
	}
	return h.client.GenerateDraft(ctx, payload.Content, payload.Subject, payload.Sender, payload.Context)
}

type chatHandler struct {
	client ai.Inference
}

func (h *chatHandler) Handle(ctx context.Context, job *Job) (any, error) {
	payload, ok := job.Payload.(ChatPayload)
	if !ok {
		return nil, fmt.Errorf("%w: expected chat payload, got %T", ErrUnknownJobKind, job.Payload)
	}
	return h.client.GenerateChatResponse(ctx, payload.Input, payload.Context)
}

type summarizationHandler struct {
	client ai.Inference
}

func (h *summarizationHandler) Handle(ctx context.Context, job *Job) (any, error) {
	payload, ok := job.Payload.(SummarizationPayload)
	if !ok {
		return nil, fmt.Errorf("%w: expected summarization payload, got %T", ErrUnknownJobKind, job.Payload)
	}
	return h.client.Summarize(ctx, payload.Content, payload.MaxLength)
}

// BatchItemOutcome is the per-item result inside a batch analysis.
type BatchItemOutcome struct {
	EmailID        string             `json:"email_id"`
	Success        bool               `json:"success"`
	Classification *ai.Classification `json:"classification,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// BatchResult aggregates per-item outcomes of a batch-analysis job. An
// item's failure is recorded here and does not fail the batch.
type BatchResult struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Items     []BatchItemOutcome `json:"items"`
}

type batchHandler struct {
	client ai.Inference
}

func (h *batchHandler) Handle(ctx context.Context, job *Job) (any, error) {
	payload, ok := job.Payload.(BatchPayload)
	if !ok {
		return nil, fmt.Errorf("%w: expected batch payload, got %T", ErrUnknownJobKind, job.Payload)
	}

	outcomes := make([]BatchItemOutcome, len(payload.Items))

	for chunkStart := 0; chunkStart < len(payload.Items); chunkStart += batchChunkSize {
		chunkEnd := chunkStart + batchChunkSize
		if chunkEnd > len(payload.Items) {
			chunkEnd = len(payload.Items)
		}

		g, chunkCtx := errgroup.WithContext(ctx)
		for i := chunkStart; i < chunkEnd; i++ {
			i := i
			g.Go(func() error {
				item := payload.Items[i]
				classification, err := h.client.Classify(chunkCtx, item.Content, item.Subject, item.Sender)
				if err != nil {
					outcomes[i] = BatchItemOutcome{EmailID: item.EmailID, Error: err.Error()}
					return nil
				}
				outcomes[i] = BatchItemOutcome{
					EmailID:        item.EmailID,
					Success:        true,
					Classification: classification,
				}
				return nil
			})
		}
		// Goroutines never return errors; Wait is a join point per chunk.
		_ = g.Wait()
	}

	result := &BatchResult{
		Total: len(payload.Items),
		Items: outcomes,
	}
	for _, outcome := range outcomes {
		if outcome.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	return result, nil
}
