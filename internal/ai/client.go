package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Default HTTP client settings.
const (
	defaultRequestTimeout = 60 * time.Second
	maxResponseBytes      = 1 << 20 // 1 MB
)

// Classification is the result of categorizing an email.
type Classification struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Labels     []string `json:"labels,omitempty"`
}

// Draft is a generated reply draft.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ChatReply is a generated assistant response.
type ChatReply struct {
	Reply string `json:"reply"`
}

// Summary is a condensed version of a text.
type Summary struct {
	Summary string `json:"summary"`
}

// Inference is the external AI collaborator contract. Implementations call
// an upstream model service; the engine treats each method as an opaque
// awaited operation that returns a structured result or an error.
type Inference interface {
	Classify(ctx context.Context, content, subject, sender string) (*Classification, error)
	GenerateDraft(ctx context.Context, content, subject, sender, threadContext string) (*Draft, error)
	GenerateChatResponse(ctx context.Context, input, threadContext string) (*ChatReply, error)
	Summarize(ctx context.Context, content string, maxLength int) (*Summary, error)
}

// Config holds HTTP inference client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// Client implements Inference against a JSON-over-HTTP upstream.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an HTTP inference client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Classify categorizes an email.
func (c *Client) Classify(ctx context.Context, content, subject, sender string) (*Classification, error) {
	req := map[string]any{
		"content": content,
		"subject": subject,
		"sender":  sender,
	}

	var out Classification
	if err := c.post(ctx, "/v1/classify", req, &out); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return &out, nil
}

// GenerateDraft produces a reply draft for an email.
func (c *Client) GenerateDraft(ctx context.Context, content, subject, sender, threadContext string) (*Draft, error) {
	req := map[string]any{
		"content": content,
		"subject": subject,
		"sender":  sender,
		"context": threadContext,
	}

	var out Draft
	if err := c.post(ctx, "/v1/draft", req, &out); err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}
	return &out, nil
}

// GenerateChatResponse produces an assistant reply to user input.
func (c *Client) GenerateChatResponse(ctx context.Context, input, threadContext string) (*ChatReply, error) {
	req := map[string]any{
		"input":   input,
		"context": threadContext,
	}

	var out ChatReply
	if err := c.post(ctx, "/v1/chat", req, &out); err != nil {
		return nil, fmt.Errorf("generate chat response: %w", err)
	}
	return &out, nil
}

// Summarize condenses a text to at most maxLength characters.
func (c *Client) Summarize(ctx context.Context, content string, maxLength int) (*Summary, error) {
	req := map[string]any{
		"content":    content,
		"max_length": maxLength,
	}

	var out Summary
	if err := c.post(ctx, "/v1/summarize", req, &out); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return &out, nil
}

// post sends a JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Inference upstream returned error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		err := fmt.Errorf("upstream returned status %d", resp.StatusCode)
		// Client-side rejections will not succeed on retry. Timeouts and
		// rate limits are still transient.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout &&
			resp.StatusCode != http.StatusTooManyRequests {
			return NewPermanentError(err)
		}
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
