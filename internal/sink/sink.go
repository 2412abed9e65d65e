// Package sink implements the delivery surfaces a generated signal can be
// pushed to: structured logs, webhooks, NATS, and a websocket broadcast hub.
package sink

import (
	"context"

	"github.com/quantflux/confluence/internal/models"
)

// Sink delivers a signal to one outbound surface. Implementations must be
// safe for concurrent use; delivery failures are the dispatcher's problem,
// a sink just reports them.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, sig models.Signal) error
	Close() error
}
