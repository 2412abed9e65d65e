package confluence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/indicators"
	"github.com/quantflux/confluence/internal/metrics"
	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/shaper"
)

// Analyzer fans a snapshot out to all indicators in parallel and fuses the
// scores of the ones that completed. Individual indicator failures exclude
// that indicator from fusion; they never fail the analysis.
type Analyzer struct {
	indicators []indicators.Indicator
	weights    map[string]float64
	budgets    config.BudgetsConfig
	log        zerolog.Logger
}

// outcome is one indicator's completed run.
type outcome struct {
	name     string
	result   models.IndicatorResult
	err      error
	duration time.Duration
}

// New creates an analyzer with the full indicator set.
func New(sh *shaper.Shaper, cfg *config.Config, log zerolog.Logger) *Analyzer {
	l := log.With().Str("component", "analyzer").Logger()
	return &Analyzer{
		indicators: indicators.All(sh, cfg, l),
		weights:    cfg.Confluence.Weights.Components,
		budgets:    cfg.Budgets,
		log:        l,
	}
}

// Analyze runs the full confluence pass over one snapshot. A structurally
// invalid snapshot returns the neutral fallback with zero reliability. The
// hard budget bounds the whole pass; indicators cancelled by it are treated
// as failed.
func (a *Analyzer) Analyze(ctx context.Context, snap *models.MarketSnapshot) models.FusionResult {
	start := time.Now()

	if err := snap.Validate(); err != nil {
		a.log.Warn().Err(err).Msg("Snapshot failed validation, returning neutral fusion")
		var symbol string
		var ts int64
		if snap != nil {
			symbol, ts = snap.Symbol, snap.Timestamp
		}
		return models.NeutralFusion(symbol, ts)
	}

	ctx, cancel := context.WithTimeout(ctx, a.budgets.AnalysisHard())
	defer cancel()

	cache := indicators.NewSnapshotCache(indicators.DefaultCacheCapacity, indicators.DefaultCacheTTL)
	// Buffered to the indicator count so late finishers can send after the
	// budget expires and still terminate.
	outcomes := make(chan outcome, len(a.indicators))
	for _, ind := range a.indicators {
		go func(ind indicators.Indicator) {
			t0 := time.Now()
			result, err := ind.Calculate(ctx, snap, cache)
			outcomes <- outcome{
				name:     ind.Name(),
				result:   result,
				err:      err,
				duration: time.Since(t0),
			}
		}(ind)
	}

	components := make(map[string]models.IndicatorResult, len(a.indicators))
	scores := make(map[string]float64, len(a.indicators))
	completed := 0
	accept := func(o outcome) {
		metrics.ObserveIndicator(o.name, o.duration, o.err == nil)
		if o.duration > a.budgets.IndicatorSoft() {
			a.log.Warn().
				Str("symbol", snap.Symbol).
				Str("indicator", o.name).
				Dur("duration", o.duration).
				Dur("soft_budget", a.budgets.IndicatorSoft()).
				Msg("Indicator exceeded soft budget")
		}
		if o.err != nil {
			a.log.Debug().
				Str("symbol", snap.Symbol).
				Str("indicator", o.name).
				Err(o.err).
				Msg("Indicator excluded from fusion")
			return
		}
		components[o.name] = o.result
		scores[o.name] = o.result.Score
		completed++
	}

	// Indicators still pending when the hard budget expires count as failed;
	// fusion proceeds over whatever completed in time.
collect:
	for received := 0; received < len(a.indicators); received++ {
		select {
		case o := <-outcomes:
			accept(o)
		case <-ctx.Done():
			for {
				select {
				case o := <-outcomes:
					accept(o)
					received++
					if received == len(a.indicators) {
						break collect
					}
				default:
					a.log.Warn().
						Str("symbol", snap.Symbol).
						Int("pending", len(a.indicators)-received).
						Dur("hard_budget", a.budgets.AnalysisHard()).
						Msg("Analysis budget exhausted, fusing completed indicators")
					break collect
				}
			}
		}
	}

	fusion := Fuse(scores, a.weights)
	result := models.FusionResult{
		Symbol:        snap.Symbol,
		Timestamp:     snap.Timestamp,
		Score:         fusion.Score,
		ScoreBase:     fusion.ScoreBase,
		QualityImpact: fusion.QualityImpact,
		ScoreRaw:      fusion.ScoreRaw,
		Consensus:     fusion.Consensus,
		Confidence:    fusion.Confidence,
		Disagreement:  fusion.Disagreement,
		Components:    components,
		Reliability:   float64(completed) / float64(len(a.indicators)),
		Price:         snap.LastPrice(),
	}

	metrics.ObserveAnalysis(snap.Symbol, time.Since(start), result.Score, result.Confidence)
	a.log.Debug().
		Str("symbol", snap.Symbol).
		Float64("score", result.Score).
		Float64("confidence", result.Confidence).
		Float64("disagreement", result.Disagreement).
		Int("indicators", completed).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")
	return result
}
