package indicators

import (
	"context"
	"math"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
	"github.com/quantflux/confluence/internal/shaper"
)

// minBookLevels is the per-side depth below which all microstructure
// sub-scores return neutral.
const minBookLevels = 3

// depthBps is the band around mid, in basis points, the depth sub-score
// sums over.
const depthBps = 50.0

// impactShare is the fraction of top-of-book depth the price-impact
// sub-score simulates consuming.
const impactShare = 0.25

var orderbookSubWeights = map[string]float64{
	"imbalance":    0.30,
	"spread":       0.10,
	"depth":        0.20,
	"price_impact": 0.10,
	"absorption":   0.15,
	"dom_momentum": 0.10,
	"obps":         0.05,
}

// Orderbook scores book microstructure: imbalance, spread, depth, expected
// impact, absorption, and short-horizon book pressure.
type Orderbook struct {
	shaper *shaper.Shaper
}

// NewOrderbook creates the orderbook indicator.
func NewOrderbook(sh *shaper.Shaper) *Orderbook {
	return &Orderbook{shaper: sh}
}

// Name implements Indicator.
func (o *Orderbook) Name() string { return string(shaper.KindOrderbook) }

// Calculate implements Indicator.
func (o *Orderbook) Calculate(ctx context.Context, snap *models.MarketSnapshot, cache *SnapshotCache) (models.IndicatorResult, error) {
	view, err := o.shaper.Orderbook(snap)
	if err != nil {
		return models.IndicatorResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.IndicatorResult{}, err
	}

	book := view.Book
	if len(book.Bids) < minBookLevels || len(book.Asks) < minBookLevels {
		return models.NeutralResult("book too thin"), nil
	}
	mid, ok := book.Mid()
	if !ok {
		return models.NeutralResult("crossed or empty book"), nil
	}

	components := map[string]float64{
		"imbalance":    clampScore(50 + 50*view.Pressure.Imbalance),
		"spread":       spreadScore(view.Pressure.SpreadPct),
		"depth":        depthScore(book, mid),
		"price_impact": priceImpactScore(book, mid),
		"absorption":   absorptionScore(book, view.Trades),
		"dom_momentum": domMomentumScore(book, mid),
		"obps":         obpsScore(book, view.Trades),
	}
	signals := map[string]models.SignalDirection{
		"book_imbalance": directionOf(view.Pressure.Imbalance, 0.1),
		"book_pressure":  directionOfScore(components["obps"], 5),
	}

	return sanitize(models.IndicatorResult{
		Score:      weightedMean(components, orderbookSubWeights),
		Components: components,
		Signals:    signals,
		Metadata: map[string]interface{}{
			"bid_levels": len(book.Bids),
			"ask_levels": len(book.Asks),
			"spread_pct": view.Pressure.SpreadPct,
		},
	}), nil
}

// spreadScore rewards tight spreads. A spread at or above 1% of mid scores
// 0; a zero spread scores 100. Crossed or empty books arrive here as 0
// spread_pct and are handled by the caller's thin-book check.
func spreadScore(spreadPct float64) float64 {
	if spreadPct <= 0 {
		return 0
	}
	return clampScore(100 * (1 - numeric.Clip(spreadPct, 0, 1)))
}

// depthScore sums size within the bps band on each side and scores their
// balance.
func depthScore(book *models.OrderBook, mid float64) float64 {
	band := mid * depthBps / 10000
	var bidDepth, askDepth float64
	for _, lvl := range book.Bids {
		if mid-lvl.Price <= band {
			bidDepth += lvl.Size
		}
	}
	for _, lvl := range book.Asks {
		if lvl.Price-mid <= band {
			askDepth += lvl.Size
		}
	}
	total := bidDepth + askDepth
	balance := numeric.SafeRatio(bidDepth-askDepth, total, 0, numeric.VolumeEpsilon)
	return clampScore(50 + 50*balance)
}

// priceImpactScore estimates the slippage of consuming a fixed share of
// top-of-book depth on each side; lower expected impact on the ask side
// than the bid side reads bullish.
func priceImpactScore(book *models.OrderBook, mid float64) float64 {
	buyImpact := walkImpact(book.Asks, mid, impactShare)
	sellImpact := walkImpact(book.Bids, mid, impactShare)
	if buyImpact == 0 && sellImpact == 0 {
		return models.NeutralScore
	}
	// Cheaper to buy than to sell means ask-side liquidity dominates.
	diff := numeric.SafeRatio(sellImpact-buyImpact, sellImpact+buyImpact, 0, numeric.GeneralEpsilon)
	return clampScore(50 + 50*diff)
}

// walkImpact walks one side of the book consuming share of its total size
// and returns the volume-weighted slippage from mid as a fraction.
func walkImpact(levels []models.BookLevel, mid float64, share float64) float64 {
	var total float64
	for _, lvl := range levels {
		total += lvl.Size
	}
	target := total * share
	if target <= 0 {
		return 0
	}
	var filled, cost float64
	for _, lvl := range levels {
		take := math.Min(lvl.Size, target-filled)
		filled += take
		cost += take * lvl.Price
		if filled >= target {
			break
		}
	}
	if filled <= 0 {
		return 0
	}
	avg := cost / filled
	return math.Abs(avg-mid) / mid
}

// absorptionScore looks for large resting orders at the touch being hit by
// the tape without the level emptying: trades at the best bid price with
// the level still thick read as bid absorption (bullish), and vice versa.
func absorptionScore(book *models.OrderBook, trades []models.Trade) float64 {
	if len(trades) == 0 {
		return models.NeutralScore
	}
	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()

	avgLevel := averageLevelSize(book)
	if avgLevel <= 0 {
		return models.NeutralScore
	}

	var hitsAtBid, hitsAtAsk float64
	for _, t := range trades {
		if math.Abs(t.Price-bid.Price) < bid.Price*1e-6 {
			hitsAtBid += t.Size
		} else if math.Abs(t.Price-ask.Price) < ask.Price*1e-6 {
			hitsAtAsk += t.Size
		}
	}
	if hitsAtBid == 0 && hitsAtAsk == 0 {
		return models.NeutralScore
	}

	// A touch level still holding multiples of the average size after being
	// hit is absorbing; a hit level at a sliver of the average is exhausted.
	bidStrength := tradeAbsorption(bid.Size, avgLevel, hitsAtBid)
	askStrength := tradeAbsorption(ask.Size, avgLevel, hitsAtAsk)
	return clampScore(50 + 50*numeric.Clip(bidStrength-askStrength, -1, 1))
}

// tradeAbsorption grades one touch level: positive when a heavily hit level
// remains thick, negative when it has thinned out.
func tradeAbsorption(levelSize, avgLevel, hitVolume float64) float64 {
	if hitVolume <= 0 {
		return 0
	}
	relSize := numeric.SafeRatio(levelSize, avgLevel, 1, numeric.VolumeEpsilon)
	activity := numeric.Clip(hitVolume/(avgLevel*4), 0, 1)
	if relSize >= 1.5 {
		return activity // absorbing
	}
	if relSize <= 0.5 {
		return -activity // exhausted
	}
	return 0
}

func averageLevelSize(book *models.OrderBook) float64 {
	n := len(book.Bids) + len(book.Asks)
	if n == 0 {
		return 0
	}
	var total float64
	for _, lvl := range book.Bids {
		total += lvl.Size
	}
	for _, lvl := range book.Asks {
		total += lvl.Size
	}
	return total / float64(n)
}

// domMomentumScore weighs size decay away from the touch on each side: a
// side whose size is concentrated near the touch is pressing.
func domMomentumScore(book *models.OrderBook, mid float64) float64 {
	bidNear := weightedNearTouch(book.Bids)
	askNear := weightedNearTouch(book.Asks)
	diff := numeric.SafeRatio(bidNear-askNear, bidNear+askNear, 0, numeric.VolumeEpsilon)
	return clampScore(50 + 50*diff)
}

// weightedNearTouch sums level sizes with geometrically decaying weight by
// distance from the touch.
func weightedNearTouch(levels []models.BookLevel) float64 {
	var sum float64
	weight := 1.0
	for _, lvl := range levels {
		sum += lvl.Size * weight
		weight *= 0.8
	}
	return sum
}

// obpsScore is the order-book pressure summary: book imbalance confirmed by
// near-touch tape direction.
func obpsScore(book *models.OrderBook, trades []models.Trade) float64 {
	var bidVol, askVol float64
	for _, lvl := range book.Bids {
		bidVol += lvl.Size
	}
	for _, lvl := range book.Asks {
		askVol += lvl.Size
	}
	bookPressure := numeric.SafeRatio(bidVol-askVol, bidVol+askVol, 0, numeric.VolumeEpsilon)

	tapePressure := 0.0
	if len(trades) > 0 {
		classified, _ := ClassifyTickRule(trades)
		var buy, sell float64
		for _, t := range classified {
			sv := signedVolume(t)
			if sv > 0 {
				buy += sv
			} else {
				sell += -sv
			}
		}
		tapePressure = numeric.SafeRatio(buy-sell, buy+sell, 0, numeric.VolumeEpsilon)
	}
	return clampScore(50 + 50*numeric.Clip(0.6*bookPressure+0.4*tapePressure, -1, 1))
}

var _ Indicator = (*Orderbook)(nil)
