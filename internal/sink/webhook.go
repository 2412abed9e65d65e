package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

// WebhookSink POSTs each signal as JSON to a configured URL. Non-2xx
// responses are delivery failures so the dispatcher's breaker can trip on a
// misbehaving receiver.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates the webhook sink.
func NewWebhookSink(cfg config.WebhookSinkConfig) *WebhookSink {
	return &WebhookSink{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements Sink.
func (s *WebhookSink) Deliver(ctx context.Context, sig models.Signal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal %s: %w", sig.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close implements Sink.
func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ Sink = (*WebhookSink)(nil)
