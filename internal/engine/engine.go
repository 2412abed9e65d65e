// Package engine drives the confluence pipeline: one loop per symbol pulls
// snapshots from the supplier, analyzes them, and feeds the fusion results
// to the signal generator.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantflux/confluence/internal/confluence"
	"github.com/quantflux/confluence/internal/metrics"
	"github.com/quantflux/confluence/internal/signal"
	"github.com/quantflux/confluence/internal/supplier"
)

// Engine runs the per-symbol analysis loops.
type Engine struct {
	supplier  supplier.Supplier
	analyzer  *confluence.Analyzer
	generator *signal.Generator
	symbols   []string
	interval  time.Duration
	log       zerolog.Logger
}

// New creates an engine.
func New(sup supplier.Supplier, analyzer *confluence.Analyzer, generator *signal.Generator, symbols []string, interval time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		supplier:  sup,
		analyzer:  analyzer,
		generator: generator,
		symbols:   symbols,
		interval:  interval,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// Run starts one loop per symbol and blocks until the context is cancelled
// or the supplier closes. Supplier fetch errors are logged and retried on
// the next tick; they never stop a loop.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range e.symbols {
		symbol := symbol
		g.Go(func() error {
			return e.runSymbol(ctx, symbol)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) runSymbol(ctx context.Context, symbol string) error {
	e.log.Info().Str("symbol", symbol).Dur("interval", e.interval).Msg("Starting analysis loop")
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if err := e.step(ctx, symbol); err != nil {
			if errors.Is(err, supplier.ErrClosed) {
				e.log.Info().Str("symbol", symbol).Msg("Supplier closed, stopping analysis loop")
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			e.log.Info().Str("symbol", symbol).Msg("Analysis loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// step runs one fetch-analyze-generate cycle. It returns supplier.ErrClosed
// when the supplier has shut down; ordinary fetch failures are logged and
// retried on the next tick.
func (e *Engine) step(ctx context.Context, symbol string) error {
	snap, err := e.supplier.Fetch(ctx, symbol)
	if err != nil {
		if errors.Is(err, supplier.ErrClosed) {
			return err
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		metrics.SupplierErrors.WithLabelValues(symbol).Inc()
		e.log.Error().Err(err).Str("symbol", symbol).Msg("Snapshot fetch failed")
		return nil
	}
	if snap == nil {
		return nil
	}
	metrics.SnapshotsSupplied.WithLabelValues(symbol).Inc()

	fusion := e.analyzer.Analyze(ctx, snap)
	e.generator.Generate(ctx, fusion)
	return nil
}
