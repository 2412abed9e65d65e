package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

// NATSSink publishes each signal to a NATS subject, suffixed with the
// symbol so consumers can subscribe per market.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the NATS server.
func NewNATSSink(cfg config.NATSSinkConfig) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}
	return &NATSSink{conn: conn, subject: cfg.Subject}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Deliver implements Sink.
func (s *NATSSink) Deliver(_ context.Context, sig models.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal %s: %w", sig.ID, err)
	}
	subject := fmt.Sprintf("%s.%s", s.subject, sig.Symbol)
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish signal to %s: %w", subject, err)
	}
	return nil
}

// Close implements Sink.
func (s *NATSSink) Close() error {
	if err := s.conn.Drain(); err != nil {
		return err
	}
	return nil
}

var _ Sink = (*NATSSink)(nil)
