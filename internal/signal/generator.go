// Package signal turns fusion results into deduplicated, quality-filtered
// trading signals and hands them to the delivery sinks.
package signal

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/metrics"
	"github.com/quantflux/confluence/internal/models"
)

// Recorder receives one quality record per analyzed fusion, dispatched or
// not. The tracker implements it.
type Recorder interface {
	Record(rec models.QualityRecord) error
}

// Generator applies the decision chain to fusion results: quality filter,
// threshold classification, strength bucketing, cooldown, then record and
// dispatch. Tracker and sink failures are logged and never propagate.
type Generator struct {
	thresholds config.ThresholdsConfig
	filter     config.QualityFilterConfig
	cooldown   time.Duration
	store      CooldownStore
	recorder   Recorder
	dispatcher *Dispatcher
	log        zerolog.Logger
}

// NewGenerator creates a signal generator. recorder and dispatcher may be
// nil, in which case the corresponding step is skipped.
func NewGenerator(cfg *config.Config, store CooldownStore, recorder Recorder, dispatcher *Dispatcher, log zerolog.Logger) *Generator {
	return &Generator{
		thresholds: cfg.Confluence.Thresholds,
		filter:     cfg.Confluence.QualityFilter,
		cooldown:   cfg.Signal.Cooldown(),
		store:      store,
		recorder:   recorder,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "signal_generator").Logger(),
	}
}

// Generate runs the decision chain over one fusion result. It returns the
// dispatched signal, or nil when the result was filtered, held, or
// suppressed by cooldown.
func (g *Generator) Generate(ctx context.Context, fusion models.FusionResult) *models.Signal {
	now := time.UnixMilli(fusion.Timestamp)

	if reason := g.qualityFilterReason(fusion); reason != "" {
		metrics.SignalsFiltered.WithLabelValues(reason).Inc()
		g.record(fusion, "", true, reason)
		g.log.Debug().
			Str("symbol", fusion.Symbol).
			Str("reason", reason).
			Float64("confidence", fusion.Confidence).
			Float64("disagreement", fusion.Disagreement).
			Msg("Signal filtered on quality")
		return nil
	}

	sigType := g.classify(fusion.Score)
	if sigType == models.SignalHold {
		g.record(fusion, models.SignalHold, false, "")
		return nil
	}

	if suppressed := g.inCooldown(ctx, fusion.Symbol, sigType, now); suppressed {
		metrics.SignalsFiltered.WithLabelValues(metrics.FilterReasonCooldown).Inc()
		g.record(fusion, sigType, true, metrics.FilterReasonCooldown)
		g.log.Debug().
			Str("symbol", fusion.Symbol).
			Str("type", string(sigType)).
			Msg("Signal suppressed by cooldown")
		return nil
	}

	sig := g.build(fusion, sigType)
	g.record(fusion, sigType, false, "")
	if err := g.store.Record(ctx, fusion.Symbol, sigType, now); err != nil {
		g.log.Error().Err(err).Str("symbol", fusion.Symbol).Msg("Failed to record cooldown entry")
	}
	metrics.SignalsGenerated.WithLabelValues(sig.Symbol, string(sig.Type)).Inc()

	if g.dispatcher != nil {
		if err := g.dispatcher.Enqueue(*sig); err != nil {
			g.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Failed to enqueue signal for delivery")
		}
	}
	g.log.Info().
		Str("symbol", sig.Symbol).
		Str("type", string(sig.Type)).
		Str("strength", string(sig.Strength)).
		Float64("score", sig.Score).
		Float64("confidence", sig.Confidence).
		Msg("Signal generated")
	return sig
}

// qualityFilterReason returns the filter reason, or empty when the fusion
// passes.
func (g *Generator) qualityFilterReason(fusion models.FusionResult) string {
	if !g.filter.Enabled {
		return ""
	}
	if fusion.Confidence < g.filter.MinConfidence {
		return metrics.FilterReasonLowConfidence
	}
	if fusion.Disagreement > g.filter.MaxDisagreement {
		return metrics.FilterReasonHighDisagreement
	}
	return ""
}

// classify maps a score onto BUY, SELL, or HOLD using the configured
// thresholds. The neutral buffer keeps a dead zone around the neutral score
// that aggressive threshold tuning cannot cut into; the stock 68/35
// thresholds already clear it.
func (g *Generator) classify(score float64) models.SignalType {
	buyFloor := math.Max(g.thresholds.Buy, models.NeutralScore+g.thresholds.NeutralBuffer)
	sellCeiling := math.Min(g.thresholds.Sell, models.NeutralScore-g.thresholds.NeutralBuffer)
	switch {
	case score >= buyFloor:
		return models.SignalBuy
	case score <= sellCeiling:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// Strength buckets how far past its threshold a score landed.
func Strength(t models.SignalType, score float64) models.SignalStrength {
	switch t {
	case models.SignalBuy:
		switch {
		case score >= 80:
			return models.StrengthVeryStrong
		case score >= 70:
			return models.StrengthStrong
		}
	case models.SignalSell:
		switch {
		case score <= 20:
			return models.StrengthVeryStrong
		case score <= 30:
			return models.StrengthStrong
		}
	}
	return models.StrengthModerate
}

// inCooldown checks the per-symbol, per-type dedup table. Only a previous
// dispatch of the same type suppresses, so a BUY↔SELL flip always passes. A
// store read failure fails open so a flaky Redis cannot silence the engine.
func (g *Generator) inCooldown(ctx context.Context, symbol string, t models.SignalType, now time.Time) bool {
	lastAt, ok, err := g.store.Last(ctx, symbol, t)
	if err != nil {
		g.log.Error().Err(err).Str("symbol", symbol).Msg("Cooldown lookup failed, allowing signal")
		return false
	}
	if !ok {
		return false
	}
	return now.Sub(lastAt) < g.cooldown
}

func (g *Generator) build(fusion models.FusionResult, t models.SignalType) *models.Signal {
	components := make(map[string]float64, len(fusion.Components))
	for name, r := range fusion.Components {
		components[name] = r.Score
	}
	return &models.Signal{
		ID:           uuid.NewString(),
		Symbol:       fusion.Symbol,
		Type:         t,
		Strength:     Strength(t, fusion.Score),
		Score:        fusion.Score,
		Consensus:    fusion.Consensus,
		Confidence:   fusion.Confidence,
		Disagreement: fusion.Disagreement,
		Price:        fusion.Price,
		Timestamp:    fusion.Timestamp,
		Components:   components,
		Thresholds:   models.Thresholds{Buy: g.thresholds.Buy, Sell: g.thresholds.Sell},
	}
}

// record writes the quality record for one decision. Tracker errors are
// logged and swallowed.
func (g *Generator) record(fusion models.FusionResult, t models.SignalType, filtered bool, reason string) {
	if g.recorder == nil {
		return
	}
	rec := models.QualityRecord{
		TimestampISO:  time.UnixMilli(fusion.Timestamp).UTC().Format(time.RFC3339Nano),
		Timestamp:     fusion.Timestamp,
		Symbol:        fusion.Symbol,
		ScoreAdjusted: fusion.Score,
		ScoreBase:     fusion.ScoreBase,
		QualityImpact: fusion.QualityImpact,
		Consensus:     fusion.Consensus,
		Confidence:    fusion.Confidence,
		Disagreement:  fusion.Disagreement,
		SignalType:    t,
		Filtered:      filtered,
		FilterReason:  reason,
	}
	if err := g.recorder.Record(rec); err != nil {
		g.log.Error().Err(err).Str("symbol", fusion.Symbol).Msg("Failed to write quality record")
	}
}
