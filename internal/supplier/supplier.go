// Package supplier produces market snapshots for the engine: either pulled
// from an exchange on a cadence or pushed in over a channel.
package supplier

import (
	"context"

	"github.com/quantflux/confluence/internal/models"
)

// Supplier yields one snapshot per symbol per fetch. The engine does not
// care whether the implementation polls, streams, or replays.
type Supplier interface {
	// Fetch produces the current snapshot for one symbol.
	Fetch(ctx context.Context, symbol string) (*models.MarketSnapshot, error)
	Close() error
}

// ChannelSupplier adapts a push-style feed: snapshots arrive on a channel
// keyed by nothing, and Fetch returns the next one regardless of symbol.
// Useful for replays and tests.
type ChannelSupplier struct {
	ch <-chan *models.MarketSnapshot
}

// NewChannelSupplier wraps an inbound snapshot channel.
func NewChannelSupplier(ch <-chan *models.MarketSnapshot) *ChannelSupplier {
	return &ChannelSupplier{ch: ch}
}

// Fetch implements Supplier. It blocks until a snapshot arrives, the
// channel closes, or the context is cancelled.
func (s *ChannelSupplier) Fetch(ctx context.Context, _ string) (*models.MarketSnapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case snap, ok := <-s.ch:
		if !ok {
			return nil, ErrClosed
		}
		return snap, nil
	}
}

// Close implements Supplier.
func (s *ChannelSupplier) Close() error { return nil }

var _ Supplier = (*ChannelSupplier)(nil)
