package sink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/models"
)

// LogSink writes every dispatched signal as a structured log line. It is
// the default sink and the one integration surface that can never fail.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates the structured-log sink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "signal_log").Logger()}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, sig models.Signal) error {
	event := s.log.Info().
		Str("signal_id", sig.ID).
		Str("symbol", sig.Symbol).
		Str("type", string(sig.Type)).
		Str("strength", string(sig.Strength)).
		Float64("score", sig.Score).
		Float64("price", sig.Price).
		Float64("consensus", sig.Consensus).
		Float64("confidence", sig.Confidence).
		Float64("disagreement", sig.Disagreement).
		Int64("timestamp_ms", sig.Timestamp)
	for name, score := range sig.Components {
		event = event.Float64("component_"+name, score)
	}
	event.Msg("SIGNAL")
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }

var _ Sink = (*LogSink)(nil)
