// Package indicators implements the six signal families of the confluence
// pipeline. Every indicator is pure over its shaped view, returns a score in
// [0,100] with 50 meaning neutral, and degrades to neutral on insufficient
// data instead of erroring.
package indicators

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/shaper"
)

// Indicator is the capability shared by all six signal families. A returned
// error means the view was rejected by the shaper and the indicator must be
// excluded from fusion; insufficient data is not an error and yields a
// neutral result instead.
type Indicator interface {
	Name() string
	Calculate(ctx context.Context, snap *models.MarketSnapshot, cache *SnapshotCache) (models.IndicatorResult, error)
}

// All constructs the full indicator set in fusion order.
func All(sh *shaper.Shaper, cfg *config.Config, log zerolog.Logger) []Indicator {
	return []Indicator{
		NewTechnical(sh),
		NewVolume(sh),
		NewOrderbook(sh),
		NewOrderflow(sh, cfg.Orderflow, log),
		NewSentiment(sh),
		NewPriceStructure(sh),
	}
}

// sanitize bounds every numeric field of a result so no NaN or infinity can
// reach fusion, replacing offenders with neutral values.
func sanitize(r models.IndicatorResult) models.IndicatorResult {
	r.Score = clampScore(r.Score)
	for k, v := range r.Components {
		r.Components[k] = clampScore(v)
	}
	return r
}
