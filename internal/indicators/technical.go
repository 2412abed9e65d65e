package indicators

import (
	"context"
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/rs/zerolog/log"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
	"github.com/quantflux/confluence/internal/shaper"
)

// tagWeights weight each timeframe's contribution to the technical score,
// finest first. Normalized over the tags actually present.
var tagWeights = map[models.Timeframe]float64{
	models.TimeframeBase: 0.4,
	models.TimeframeLTF:  0.3,
	models.TimeframeMTF:  0.2,
	models.TimeframeHTF:  0.1,
}

// subWeights weight the per-timeframe sub-indicators.
var technicalSubWeights = map[string]float64{
	"momentum":     0.30,
	"trend":        0.30,
	"oscillator":   0.20,
	"ma_alignment": 0.20,
}

// Technical scores classic chart indicators per timeframe and combines them
// with fixed tag weights.
type Technical struct {
	shaper *shaper.Shaper
}

// NewTechnical creates the technical indicator.
func NewTechnical(sh *shaper.Shaper) *Technical {
	return &Technical{shaper: sh}
}

// Name implements Indicator.
func (t *Technical) Name() string { return string(shaper.KindTechnical) }

// Calculate implements Indicator.
func (t *Technical) Calculate(ctx context.Context, snap *models.MarketSnapshot, cache *SnapshotCache) (models.IndicatorResult, error) {
	view, err := t.shaper.Technical(snap)
	if err != nil {
		return models.IndicatorResult{}, err
	}
	if len(view.Timeframes) == 0 {
		return models.NeutralResult("no timeframes"), nil
	}

	components := make(map[string]float64)
	signals := make(map[string]models.SignalDirection)
	sum, wsum := 0.0, 0.0
	for _, tag := range view.Timeframes {
		if err := ctx.Err(); err != nil {
			return models.IndicatorResult{}, err
		}
		frame := view.OHLCV[tag]
		score := t.scoreTimeframe(snap, tag, frame, cache)
		components[string(tag)] = score
		signals[string(tag)+"_bias"] = directionOfScore(score, 5)
		w := tagWeights[tag]
		sum += score * w
		wsum += w
	}
	total := models.NeutralScore
	if wsum > numeric.GeneralEpsilon {
		total = clampScore(sum / wsum)
	}

	return sanitize(models.IndicatorResult{
		Score:      total,
		Components: components,
		Signals:    signals,
		Metadata: map[string]interface{}{
			"timeframes": len(view.Timeframes),
		},
	}), nil
}

// scoreTimeframe computes the weighted sub-indicator aggregate for one
// frame. Results are memoized in the snapshot cache because the structure
// indicator consults the same per-tag biases.
func (t *Technical) scoreTimeframe(snap *models.MarketSnapshot, tag models.Timeframe, frame *models.OHLCVFrame, cache *SnapshotCache) float64 {
	key := Key(snap.Symbol, snap.Timestamp, "technical:"+string(tag))
	if v, ok := cache.GetFloat(key); ok {
		return v
	}

	closes := frame.Closes()
	subs := make(map[string]float64)
	if v, ok := momentumScore(closes); ok {
		subs["momentum"] = v
	}
	if v, ok := trendScore(closes); ok {
		subs["trend"] = v
	}
	if v, ok := oscillatorScore(closes); ok {
		subs["oscillator"] = v
	}
	if v, ok := maAlignmentScore(closes); ok {
		subs["ma_alignment"] = v
	}
	score := models.NeutralScore
	if len(subs) > 0 {
		score = weightedMean(subs, technicalSubWeights)
	} else {
		log.Debug().
			Str("symbol", snap.Symbol).
			Str("timeframe", string(tag)).
			Int("bars", frame.Len()).
			Msg("Technical sub-scores unavailable, scoring neutral")
	}
	cache.Set(key, score)
	return score
}

// momentumScore maps RSI(14) directly onto the 0-100 scale: high RSI means
// bullish momentum.
func momentumScore(closes []float64) (float64, bool) {
	const period = 14
	if len(closes) < period+1 {
		return 0, false
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	v, ok := lastValue(rsi.Compute(sliceToChan(closes)))
	if !ok {
		return 0, false
	}
	return clampScore(v), true
}

// trendScore maps the MACD histogram, normalized by price, onto the score
// scale with saturation at half a percent of price.
func trendScore(closes []float64) (float64, bool) {
	const (
		fast   = 12
		slow   = 26
		signal = 9
	)
	if len(closes) < slow+signal {
		return 0, false
	}
	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macd.Compute(sliceToChan(closes))

	// The library duplicates each value to both outputs in lockstep, so both
	// channels must be read in the same iteration.
	var macdLast, signalLast float64
	seen := false
	for {
		m, okM := <-macdChan
		s, okS := <-signalChan
		if !okM || !okS {
			break
		}
		if numeric.IsFinite(m) && numeric.IsFinite(s) {
			macdLast, signalLast = m, s
			seen = true
		}
	}
	if !seen {
		return 0, false
	}
	price := closes[len(closes)-1]
	histPct := numeric.SafeRatio(macdLast-signalLast, price, 0, numeric.PriceEpsilon) * 100
	return clampScore(50 + 50*numeric.Saturate(histPct, 0.5)), true
}

// oscillatorScore maps Bollinger %B onto the score scale: price at the
// upper band scores 100, at the lower band 0.
func oscillatorScore(closes []float64) (float64, bool) {
	const period = 20
	if len(closes) < period {
		return 0, false
	}
	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	lowerChan, middleChan, upperChan := bb.Compute(sliceToChan(closes))

	// Same lockstep duplication as MACD: all three bands advance together.
	var lower, upper float64
	seen := false
	for {
		l, okL := <-lowerChan
		_, okM := <-middleChan
		u, okU := <-upperChan
		if !okL || !okM || !okU {
			break
		}
		if numeric.IsFinite(l) && numeric.IsFinite(u) {
			lower, upper = l, u
			seen = true
		}
	}
	if !seen {
		return 0, false
	}
	price := closes[len(closes)-1]
	width := upper - lower
	pctB := numeric.SafeRatio(price-lower, width, 0.5, numeric.PriceEpsilon)
	return clampScore(pctB * 100), true
}

// maAlignmentScore checks the stacking of price over the fast and slow EMAs.
// Full stack up scores 100, full stack down 0, mixed in between.
func maAlignmentScore(closes []float64) (float64, bool) {
	const (
		fastPeriod = 9
		slowPeriod = 21
	)
	if len(closes) < slowPeriod+1 {
		return 0, false
	}
	fastEma := trend.NewEmaWithPeriod[float64](fastPeriod)
	slowEma := trend.NewEmaWithPeriod[float64](slowPeriod)
	fast, okF := lastValue(fastEma.Compute(sliceToChan(closes)))
	slow, okS := lastValue(slowEma.Compute(sliceToChan(closes)))
	if !okF || !okS {
		return 0, false
	}
	price := closes[len(closes)-1]

	points := 0
	if price > fast {
		points++
	}
	if fast > slow {
		points++
	}
	if price > slow {
		points++
	}
	return clampScore(float64(points) / 3 * 100), true
}

// ensure interface compliance
var _ Indicator = (*Technical)(nil)

// String implements fmt.Stringer for diagnostics.
func (t *Technical) String() string { return fmt.Sprintf("indicator(%s)", t.Name()) }
