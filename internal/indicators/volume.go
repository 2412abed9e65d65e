package indicators

import (
	"context"
	"math"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
	"github.com/quantflux/confluence/internal/shaper"
)

var volumeSubWeights = map[string]float64{
	"volume_trend":          0.35,
	"volume_anomaly":        0.25,
	"buy_sell_balance":      0.30,
	"range_volume_validity": 0.10,
}

// Volume scores participation: volume trend, anomalies, and the buy/sell
// balance of the trade tape.
type Volume struct {
	shaper *shaper.Shaper
}

// NewVolume creates the volume indicator.
func NewVolume(sh *shaper.Shaper) *Volume {
	return &Volume{shaper: sh}
}

// Name implements Indicator.
func (v *Volume) Name() string { return string(shaper.KindVolume) }

// Calculate implements Indicator.
func (v *Volume) Calculate(ctx context.Context, snap *models.MarketSnapshot, cache *SnapshotCache) (models.IndicatorResult, error) {
	view, err := v.shaper.Volume(snap)
	if err != nil {
		return models.IndicatorResult{}, err
	}
	frame := pickFrame(view.OHLCV)
	if frame.Len() < DefaultLookback {
		return models.NeutralResult("insufficient candles"), nil
	}
	if err := ctx.Err(); err != nil {
		return models.IndicatorResult{}, err
	}

	components := map[string]float64{
		"volume_trend":          volumeTrendScore(frame),
		"volume_anomaly":        volumeAnomalyScore(frame),
		"range_volume_validity": cachedRangeValidity(snap, frame, cache),
	}
	signals := map[string]models.SignalDirection{
		"volume_trend": directionOfScore(components["volume_trend"], 5),
	}

	if len(view.ProcessedTrades) > 0 {
		balance, stats := buySellBalance(view.ProcessedTrades)
		components["buy_sell_balance"] = balance
		signals["tape_bias"] = directionOfScore(balance, 5)
		return sanitize(models.IndicatorResult{
			Score:      weightedMean(components, volumeSubWeights),
			Components: components,
			Signals:    signals,
			Metadata: map[string]interface{}{
				"trades":        stats.Total,
				"unknown_share": stats.UnknownShare,
			},
		}), nil
	}

	return sanitize(models.IndicatorResult{
		Score:      weightedMean(components, volumeSubWeights),
		Components: components,
		Signals:    signals,
		Metadata:   map[string]interface{}{"trades": 0},
	}), nil
}

// pickFrame prefers the base frame, falling back to the finest available.
func pickFrame(frames map[models.Timeframe]*models.OHLCVFrame) *models.OHLCVFrame {
	for _, tag := range models.Timeframes {
		if f, ok := frames[tag]; ok && f.Len() > 0 {
			return f
		}
	}
	return &models.OHLCVFrame{}
}

// volumeTrendScore compares the short-window volume mean against the long
// window, directed by the price drift over the short window.
func volumeTrendScore(frame *models.OHLCVFrame) float64 {
	volumes := frame.Volumes()
	if len(volumes) < DefaultLookback {
		return models.NeutralScore
	}
	shortMean := numeric.Mean(volumes[len(volumes)-5:])
	longMean := numeric.Mean(volumes[len(volumes)-DefaultLookback:])
	ratio := numeric.SafeRatio(shortMean, longMean, 1, numeric.VolumeEpsilon)

	bars := frame.Bars
	drift := bars[len(bars)-1].Close - bars[len(bars)-5].Close
	direction := 1.0
	if drift < 0 {
		direction = -1
	}
	// Expanding volume amplifies the price drift; contracting volume fades it.
	expansion := numeric.Clip(ratio-1, -1, 1)
	return clampScore(50 + 50*direction*math.Abs(expansion))
}

// volumeAnomalyScore flags the latest bar's volume as a z-score against the
// window, directed by that bar's close direction.
func volumeAnomalyScore(frame *models.OHLCVFrame) float64 {
	volumes := frame.Volumes()
	if len(volumes) < DefaultLookback {
		return models.NeutralScore
	}
	window := volumes[len(volumes)-DefaultLookback:]
	mean := numeric.Mean(window)
	std := numeric.StdDev(window)
	z := numeric.SafeRatio(window[len(window)-1]-mean, std, 0, numeric.VolumeEpsilon)

	bars := frame.Bars
	last := bars[len(bars)-1]
	direction := 0.0
	if last.Close > last.Open {
		direction = 1
	} else if last.Close < last.Open {
		direction = -1
	}
	return clampScore(50 + 50*direction*numeric.Clip(math.Abs(z)/3, 0, 1))
}

// buySellBalance computes the tick-rule buy/sell volume balance of the
// processed tape. Unknown trades contribute nothing.
func buySellBalance(trades []models.Trade) (float64, TickStats) {
	classified, stats := ClassifyTickRule(trades)
	var buyVol, sellVol float64
	for _, t := range classified {
		sv := signedVolume(t)
		if sv > 0 {
			buyVol += sv
		} else {
			sellVol += -sv
		}
	}
	total := buyVol + sellVol
	balance := numeric.SafeRatio(buyVol-sellVol, total, 0, numeric.VolumeEpsilon)
	return clampScore(50 + 50*balance), stats
}

// cachedRangeValidity memoizes the range-volume validity check so the
// price-structure indicator can reuse it within the same snapshot.
func cachedRangeValidity(snap *models.MarketSnapshot, frame *models.OHLCVFrame, cache *SnapshotCache) float64 {
	key := Key(snap.Symbol, snap.Timestamp, "volume:range_validity")
	if v, ok := cache.GetFloat(key); ok {
		return v
	}
	v := rangeVolumeValidity(frame)
	cache.Set(key, v)
	return v
}

var _ Indicator = (*Volume)(nil)
