package indicators

import (
	"context"
	"math"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
	"github.com/quantflux/confluence/internal/shaper"
)

// pivotSpan is the number of bars on each side a pivot high or low must
// dominate.
const pivotSpan = 2

// structureLookback is the window the range and breakout checks compute
// over.
const structureLookback = 50

var structureSubWeights = map[string]float64{
	"range_position": 0.40,
	"breakout":       0.35,
	"sr_proximity":   0.25,
}

// PriceStructure scores where price sits inside its multi-timeframe range
// structure: support and resistance, range position, and breakouts.
type PriceStructure struct {
	shaper *shaper.Shaper
}

// NewPriceStructure creates the price-structure indicator.
func NewPriceStructure(sh *shaper.Shaper) *PriceStructure {
	return &PriceStructure{shaper: sh}
}

// Name implements Indicator.
func (p *PriceStructure) Name() string { return string(shaper.KindPriceStructure) }

// Calculate implements Indicator.
func (p *PriceStructure) Calculate(ctx context.Context, snap *models.MarketSnapshot, cache *SnapshotCache) (models.IndicatorResult, error) {
	view, err := p.shaper.PriceStructure(snap)
	if err != nil {
		return models.IndicatorResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.IndicatorResult{}, err
	}

	components := make(map[string]float64)
	signals := make(map[string]models.SignalDirection)
	sum, wsum := 0.0, 0.0
	scored := 0
	for _, tag := range models.Timeframes {
		frame := view.OHLCV[tag]
		if frame.Len() < shaper.StructureMinCandles {
			continue
		}
		score := scoreStructure(frame)
		components[string(tag)] = score
		signals[string(tag)+"_structure"] = directionOfScore(score, 5)
		w := tagWeights[tag]
		sum += score * w
		wsum += w
		scored++
	}
	if scored == 0 {
		return models.NeutralResult("insufficient candles on all timeframes"), nil
	}
	score := clampScore(sum / wsum)

	// Volume's range-validity verdict, when the volume indicator already
	// produced it for this snapshot, scales structural conviction: ranges
	// unconfirmed by volume pull the score toward neutral.
	validityKey := Key(snap.Symbol, snap.Timestamp, "volume:range_validity")
	if validity, ok := cache.GetFloat(validityKey); ok {
		components["range_volume_validity"] = validity
		factor := 0.5 + 0.5*numeric.Clip(validity/100, 0, 1)
		score = clampScore(models.NeutralScore + (score-models.NeutralScore)*factor)
	}

	return sanitize(models.IndicatorResult{
		Score:      score,
		Components: components,
		Signals:    signals,
		Metadata: map[string]interface{}{
			"timeframes_scored": scored,
		},
	}), nil
}

// scoreStructure combines the per-frame sub-scores with fixed weights.
func scoreStructure(frame *models.OHLCVFrame) float64 {
	bars := frame.Bars
	if len(bars) > structureLookback {
		bars = bars[len(bars)-structureLookback:]
	}
	last := bars[len(bars)-1].Close

	subs := map[string]float64{
		"range_position": rangePositionScore(bars, last),
		"breakout":       breakoutScore(bars),
		"sr_proximity":   srProximityScore(bars, last),
	}
	return weightedMean(subs, structureSubWeights)
}

// rangePositionScore places the last close inside the window's high-low
// range: at the high scores 100, at the low 0.
func rangePositionScore(bars []models.Bar, last float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	pos := numeric.SafeRatio(last-lo, hi-lo, 0.5, numeric.PriceEpsilon)
	return clampScore(pos * 100)
}

// breakoutScore detects a close beyond the prior window's extremes,
// confirmed by above-average volume. Unconfirmed breakouts score at half
// strength.
func breakoutScore(bars []models.Bar) float64 {
	if len(bars) < 10 {
		return models.NeutralScore
	}
	prior := bars[:len(bars)-1]
	last := bars[len(bars)-1]

	priorHigh, priorLow := math.Inf(-1), math.Inf(1)
	var volSum float64
	for _, b := range prior {
		if b.High > priorHigh {
			priorHigh = b.High
		}
		if b.Low < priorLow {
			priorLow = b.Low
		}
		volSum += b.Volume
	}
	avgVol := volSum / float64(len(prior))
	confirmed := avgVol > 0 && last.Volume > avgVol*1.5

	switch {
	case last.Close > priorHigh:
		if confirmed {
			return 90
		}
		return 70
	case last.Close < priorLow:
		if confirmed {
			return 10
		}
		return 30
	default:
		return models.NeutralScore
	}
}

// srProximityScore finds pivot-based support and resistance and scores the
// last price's position between the nearest levels: close above support and
// far from resistance reads bullish.
func srProximityScore(bars []models.Bar, last float64) float64 {
	supports, resistances := pivotLevels(bars)

	nearestSupport := nearestBelow(supports, last)
	nearestResistance := nearestAbove(resistances, last)
	if nearestSupport <= 0 || math.IsInf(nearestResistance, 1) {
		return models.NeutralScore
	}
	span := nearestResistance - nearestSupport
	pos := numeric.SafeRatio(last-nearestSupport, span, 0.5, numeric.PriceEpsilon)
	// Near support means room above, so position near support scores high.
	return clampScore((1 - pos) * 100)
}

// pivotLevels extracts pivot lows as supports and pivot highs as
// resistances.
func pivotLevels(bars []models.Bar) (supports, resistances []float64) {
	for i := pivotSpan; i < len(bars)-pivotSpan; i++ {
		isHigh, isLow := true, true
		for j := i - pivotSpan; j <= i+pivotSpan; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
		}
		if isHigh {
			resistances = append(resistances, bars[i].High)
		}
		if isLow {
			supports = append(supports, bars[i].Low)
		}
	}
	return supports, resistances
}

func nearestBelow(levels []float64, price float64) float64 {
	best := 0.0
	for _, l := range levels {
		if l < price && l > best {
			best = l
		}
	}
	return best
}

func nearestAbove(levels []float64, price float64) float64 {
	best := math.Inf(1)
	for _, l := range levels {
		if l > price && l < best {
			best = l
		}
	}
	return best
}

var _ Indicator = (*PriceStructure)(nil)
