package indicators

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
	"github.com/quantflux/confluence/internal/shaper"
)

// oiChangeCap bounds open-interest percentage changes so a bad previous
// value cannot blow up the score.
const oiChangeCap = 500.0

// tradeFlowDecay is the per-step recency decay applied walking the tape
// backwards in the trade-flow sub-score.
const tradeFlowDecay = 0.995

// zoneBuckets is the price bucket count for liquidity zone detection.
const zoneBuckets = 20

// zonePercentile marks a bucket as a liquidity zone when its volume exceeds
// this percentile of all bucket volumes.
const zonePercentile = 75.0

var orderflowSubWeights = map[string]float64{
	"cvd":             0.30,
	"open_interest":   0.20,
	"trade_flow":      0.20,
	"imbalance":       0.10,
	"pressure":        0.10,
	"liquidity_zones": 0.10,
}

// Orderflow scores aggressive flow: tick-rule classified tape, cumulative
// volume delta, open-interest scenario analysis, and liquidity structure.
// Every sub-score call is timed through the performance monitor.
type Orderflow struct {
	shaper *shaper.Shaper
	cfg    config.OrderflowConfig
	perf   *PerfMonitor
	log    zerolog.Logger
}

// NewOrderflow creates the orderflow indicator.
func NewOrderflow(sh *shaper.Shaper, cfg config.OrderflowConfig, log zerolog.Logger) *Orderflow {
	l := log.With().Str("indicator", string(shaper.KindOrderflow)).Logger()
	return &Orderflow{
		shaper: sh,
		cfg:    cfg,
		perf:   NewPerfMonitor(l),
		log:    l,
	}
}

// Name implements Indicator.
func (o *Orderflow) Name() string { return string(shaper.KindOrderflow) }

// GetPerformanceMetrics exposes the recorded sub-score timings.
func (o *Orderflow) GetPerformanceMetrics() map[string]OpStats {
	return o.perf.GetPerformanceMetrics()
}

// Calculate implements Indicator.
func (o *Orderflow) Calculate(ctx context.Context, snap *models.MarketSnapshot, cache *SnapshotCache) (models.IndicatorResult, error) {
	view, err := o.shaper.Orderflow(snap)
	if err != nil {
		return models.IndicatorResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.IndicatorResult{}, err
	}

	var (
		classified []models.Trade
		stats      TickStats
	)
	o.perf.Track("tick_rule", func() {
		classified, stats = ClassifyTickRule(view.ProcessedTrades)
	})
	if stats.Total > 0 && stats.UnknownShare > unknownShareWarnLimit {
		o.log.Warn().
			Str("symbol", snap.Symbol).
			Int("trades", stats.Total).
			Float64("unknown_share", stats.UnknownShare).
			Msg("High unknown-side share after tick-rule classification")
	}

	components := make(map[string]float64)
	signals := make(map[string]models.SignalDirection)

	if len(classified) > 0 {
		o.perf.Track("cvd", func() {
			components["cvd"] = o.cvdScore(snap.Symbol, classified, view.OHLCV)
		})
		o.perf.Track("trade_flow", func() {
			components["trade_flow"] = tradeFlowScore(classified)
		})
		o.perf.Track("trades_imbalance", func() {
			components["imbalance"] = tradesImbalanceScore(classified)
		})
		o.perf.Track("trades_pressure", func() {
			components["pressure"] = tradesPressureScore(classified, view.Book)
		})
		o.perf.Track("liquidity_zones", func() {
			components["liquidity_zones"] = liquidityZonesScore(classified, lastTradePrice(classified))
		})
		signals["cvd_bias"] = directionOfScore(components["cvd"], 5)
		signals["tape_bias"] = directionOfScore(components["trade_flow"], 5)
	}

	if view.OpenInterest != nil {
		o.perf.Track("open_interest", func() {
			components["open_interest"] = o.openInterestScore(snap.Symbol, view.OpenInterest, view.OHLCV)
		})
		signals["oi_bias"] = directionOfScore(components["open_interest"], 5)
	}

	if err := ctx.Err(); err != nil {
		return models.IndicatorResult{}, err
	}
	if len(components) == 0 {
		return models.NeutralResult("no flow data"), nil
	}

	directional := weightedMean(components, orderflowSubWeights)

	// Liquidity does not take a side. Thin activity shrinks the directional
	// deviation from neutral; a busy tape leaves it intact.
	var liquidity float64
	o.perf.Track("liquidity", func() {
		liquidity = liquidityFactor(classified)
	})
	components["liquidity"] = clampScore(liquidity * 100)
	score := models.NeutralScore + (directional-models.NeutralScore)*(0.5+0.5*liquidity)

	return sanitize(models.IndicatorResult{
		Score:      clampScore(score),
		Components: components,
		Signals:    signals,
		Metadata: map[string]interface{}{
			"trades":           stats.Total,
			"classified":       stats.Classified,
			"unknown_share":    stats.UnknownShare,
			"has_open_interest": view.OpenInterest != nil,
		},
	}), nil
}

// cvdScore computes the cumulative volume delta ratio in fixed-decimal
// arithmetic and maps it onto the score scale with the configured
// saturation. Returns neutral on empty or abnormal volume.
func (o *Orderflow) cvdScore(symbol string, trades []models.Trade, frames map[models.Timeframe]*models.OHLCVFrame) float64 {
	var cvd, totalVolume float64
	for _, t := range trades {
		cvd += signedVolume(t)
		totalVolume += math.Abs(t.Size)
	}
	if totalVolume < numeric.VolumeEpsilon {
		return models.NeutralScore
	}
	if math.Abs(cvd) > numeric.MaxCVDValue {
		o.log.Warn().
			Str("symbol", symbol).
			Float64("cvd", cvd).
			Msg("Abnormal CVD magnitude, scoring neutral")
		return models.NeutralScore
	}

	cvdPct := numeric.DecimalRatio(cvd, totalVolume)

	// Divergence check: both sides are dimensionless fractions. Flow leaning
	// against price gets faded toward neutral.
	priceFrac := 0.0
	if f, ok := frames[models.TimeframeBase]; ok {
		priceFrac = priceChangeFraction(f)
	}
	strength := numeric.Saturate(cvdPct, o.cfg.CVD.SaturationThreshold)
	if priceFrac != 0 && strength != 0 && math.Signbit(priceFrac) != math.Signbit(strength) {
		strength *= 0.5
	}
	return clampScore(50 + 50*strength)
}

// openInterestScore applies the four-scenario open-interest classifier.
// Rising OI confirms the price move; falling OI fades it.
func (o *Orderflow) openInterestScore(symbol string, oi *models.OpenInterest, frames map[models.Timeframe]*models.OHLCVFrame) float64 {
	cfg := o.cfg.OpenInterest
	if !numeric.IsFinite(oi.Current) || !numeric.IsFinite(oi.Previous) || oi.Current < 0 || oi.Previous < 0 {
		return models.NeutralScore
	}

	oiChangePct := numeric.DecimalChangePct(oi.Current, oi.Previous, numeric.OIEpsilon)
	oiChangePct = numeric.Clip(oiChangePct, -oiChangeCap, oiChangeCap)

	frame, ok := frames[models.TimeframeBase]
	if !ok || frame.Len() < 2 {
		return models.NeutralScore
	}
	priceChangePct := priceChangeFraction(frame) * 100

	if math.Abs(oiChangePct) < cfg.MinimalChangeThreshold {
		return models.NeutralScore
	}
	if math.Abs(priceChangePct) < cfg.PriceDirectionThreshold {
		return models.NeutralScore
	}

	oiUp := oiChangePct > 0
	priceUp := priceChangePct > 0
	direction := 1.0
	switch {
	case oiUp && priceUp: // new longs building up
	case !oiUp && priceUp: // short covering rally
		direction = -1
	case oiUp && !priceUp: // new shorts pressing
		direction = -1
	default: // long liquidation exhaustion
	}

	oiStrength := numeric.Saturate(math.Abs(oiChangePct), cfg.OISaturationThreshold)
	priceStrength := numeric.Saturate(math.Abs(priceChangePct), cfg.PriceSaturationThreshold)
	combined := (oiStrength + priceStrength) / 2

	o.log.Debug().
		Str("symbol", symbol).
		Float64("oi_change_pct", oiChangePct).
		Float64("price_change_pct", priceChangePct).
		Float64("combined_strength", combined).
		Msg("Open-interest scenario classified")
	return clampScore(50 + 50*direction*combined)
}

// tradeFlowScore is volume-weighted buy/sell pressure with recency decay:
// the most recent trade carries full weight, older trades fade.
func tradeFlowScore(trades []models.Trade) float64 {
	var buy, sell float64
	weight := 1.0
	for i := len(trades) - 1; i >= 0; i-- {
		sv := signedVolume(trades[i]) * weight
		if sv > 0 {
			buy += sv
		} else {
			sell += -sv
		}
		weight *= tradeFlowDecay
	}
	balance := numeric.SafeRatio(buy-sell, buy+sell, 0, numeric.VolumeEpsilon)
	return clampScore(50 + 50*balance)
}

// tradesImbalanceScore counts trades per side, ignoring size.
func tradesImbalanceScore(trades []models.Trade) float64 {
	var buys, sells float64
	for _, t := range trades {
		switch t.Side {
		case models.SideBuy:
			buys++
		case models.SideSell:
			sells++
		}
	}
	balance := numeric.SafeRatio(buys-sells, buys+sells, 0, numeric.GeneralEpsilon)
	return clampScore(50 + 50*balance)
}

// tradesPressureScore relates aggressive tape volume to resting book
// liquidity: heavy buying into a thin ask side presses harder than the same
// buying into a wall.
func tradesPressureScore(trades []models.Trade, book *models.OrderBook) float64 {
	var buyVol, sellVol float64
	for _, t := range trades {
		sv := signedVolume(t)
		if sv > 0 {
			buyVol += sv
		} else {
			sellVol += -sv
		}
	}
	if buyVol+sellVol < numeric.VolumeEpsilon {
		return models.NeutralScore
	}

	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		balance := (buyVol - sellVol) / (buyVol + sellVol)
		return clampScore(50 + 50*balance)
	}
	var bidDepth, askDepth float64
	for _, lvl := range book.Bids {
		bidDepth += lvl.Size
	}
	for _, lvl := range book.Asks {
		askDepth += lvl.Size
	}
	buyPressure := numeric.SafeRatio(buyVol, askDepth, 0, numeric.VolumeEpsilon)
	sellPressure := numeric.SafeRatio(sellVol, bidDepth, 0, numeric.VolumeEpsilon)
	diff := numeric.SafeRatio(buyPressure-sellPressure, buyPressure+sellPressure, 0, numeric.GeneralEpsilon)
	return clampScore(50 + 50*diff)
}

// liquidityFactor measures tape activity in [0,1]: trades per second over
// the window, saturating at one trade per second.
func liquidityFactor(trades []models.Trade) float64 {
	if len(trades) < 2 {
		return 0.5
	}
	spanMS := trades[len(trades)-1].Timestamp - trades[0].Timestamp
	if spanMS <= 0 {
		return 0.5
	}
	perSecond := float64(len(trades)) / (float64(spanMS) / 1000)
	return numeric.Clip(perSecond, 0, 1)
}

// liquidityZonesScore buckets traded volume by price and scores the last
// price's position relative to the high-volume zones: trading above a heavy
// zone reads as support below, trading under one as resistance above.
func liquidityZonesScore(trades []models.Trade, lastPrice float64) float64 {
	if len(trades) < zoneBuckets || lastPrice <= 0 {
		return models.NeutralScore
	}
	minPrice, maxPrice := trades[0].Price, trades[0].Price
	for _, t := range trades {
		if t.Price < minPrice {
			minPrice = t.Price
		}
		if t.Price > maxPrice {
			maxPrice = t.Price
		}
	}
	span := maxPrice - minPrice
	if span < numeric.PriceEpsilon {
		return models.NeutralScore
	}

	volumes := make([]float64, zoneBuckets)
	for _, t := range trades {
		idx := int((t.Price - minPrice) / span * float64(zoneBuckets))
		if idx >= zoneBuckets {
			idx = zoneBuckets - 1
		}
		volumes[idx] += t.Size
	}
	threshold := numeric.Percentile(volumes, zonePercentile)

	var below, above float64
	lastIdx := int((lastPrice - minPrice) / span * float64(zoneBuckets))
	for i, v := range volumes {
		if v < threshold {
			continue
		}
		if i < lastIdx {
			below += v
		} else if i > lastIdx {
			above += v
		}
	}
	if below+above < numeric.VolumeEpsilon {
		return models.NeutralScore
	}
	balance := (below - above) / (below + above)
	return clampScore(50 + 50*balance)
}

func lastTradePrice(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	return trades[len(trades)-1].Price
}

var _ Indicator = (*Orderflow)(nil)
