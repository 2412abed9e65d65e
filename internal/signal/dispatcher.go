package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/quantflux/confluence/internal/metrics"
	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/sink"
)

// deliveryTimeout bounds a single sink delivery attempt.
const deliveryTimeout = 5 * time.Second

// Dispatcher decouples signal generation from delivery: signals go into a
// bounded queue and a background worker fans each one out to all sinks. A
// per-sink circuit breaker keeps one failing surface from slowing the rest.
type Dispatcher struct {
	queue    chan models.Signal
	sinks    []sink.Sink
	breakers map[string]*gobreaker.CircuitBreaker
	log      zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(sinks []sink.Sink, queueSize int, log zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(sinks))
	l := log.With().Str("component", "dispatcher").Logger()
	for _, s := range sinks {
		name := s.Name()
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				l.Warn().
					Str("sink", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Sink circuit breaker state change")
			},
		})
	}
	return &Dispatcher{
		queue:    make(chan models.Signal, queueSize),
		sinks:    sinks,
		breakers: breakers,
		log:      l,
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-d.queue:
				metrics.SinkQueueDepth.Set(float64(len(d.queue)))
				d.deliver(ctx, sig)
			}
		}
	}()
}

// Enqueue queues a signal for delivery without blocking. A full queue is an
// error; the caller logs and moves on rather than stalling analysis.
func (d *Dispatcher) Enqueue(sig models.Signal) error {
	select {
	case d.queue <- sig:
		metrics.SinkQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		return fmt.Errorf("dispatch queue full, dropping signal %s for %s", sig.ID, sig.Symbol)
	}
}

// deliver fans one signal out to every sink through its breaker.
func (d *Dispatcher) deliver(ctx context.Context, sig models.Signal) {
	for _, s := range d.sinks {
		s := s
		br := d.breakers[s.Name()]
		_, err := br.Execute(func() (interface{}, error) {
			dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()
			return nil, s.Deliver(dctx, sig)
		})
		if err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			d.log.Error().
				Err(err).
				Str("sink", s.Name()).
				Str("signal_id", sig.ID).
				Str("symbol", sig.Symbol).
				Msg("Signal delivery failed")
		}
	}
}

// Stop drains the worker and closes all sinks.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			d.log.Error().Err(err).Str("sink", s.Name()).Msg("Failed to close sink")
		}
	}
}
