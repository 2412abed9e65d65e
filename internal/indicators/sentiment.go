package indicators

import (
	"context"
	"math"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
	"github.com/quantflux/confluence/internal/shaper"
)

// MarketTrend is the coarse regime label derived from 24-hour price and
// volatility behaviour.
type MarketTrend string

const (
	TrendStronglyBullish MarketTrend = "strongly_bullish"
	TrendBullish         MarketTrend = "bullish"
	TrendNeutral         MarketTrend = "neutral"
	TrendVolatileNeutral MarketTrend = "volatile_neutral"
	TrendBearish         MarketTrend = "bearish"
	TrendStronglyBearish MarketTrend = "strongly_bearish"
)

var sentimentSubWeights = map[string]float64{
	"fear_greed":   0.35,
	"funding":      0.25,
	"long_short":   0.20,
	"liquidations": 0.10,
	"trend":        0.10,
}

// enrichedFeatures are the derived sentiment inputs computed from ticker
// and OHLCV when raw positioning data is thin.
type enrichedFeatures struct {
	PriceChange24h  float64 // percent
	VolumeChange24h float64 // percent
	Volatility24h   float64 // std of normalized high-low range
	Trend           MarketTrend
}

// Sentiment scores derivatives positioning and derived market mood: funding,
// long/short ratio, liquidations, and a composite fear/greed index.
type Sentiment struct {
	shaper *shaper.Shaper
}

// NewSentiment creates the sentiment indicator.
func NewSentiment(sh *shaper.Shaper) *Sentiment {
	return &Sentiment{shaper: sh}
}

// Name implements Indicator.
func (s *Sentiment) Name() string { return string(shaper.KindSentiment) }

// Calculate implements Indicator.
func (s *Sentiment) Calculate(ctx context.Context, snap *models.MarketSnapshot, cache *SnapshotCache) (models.IndicatorResult, error) {
	view, err := s.shaper.Sentiment(snap)
	if err != nil {
		return models.IndicatorResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.IndicatorResult{}, err
	}

	features := deriveFeatures(view)
	funding, longShort := positioningInputs(view, snap.Ticker)

	components := map[string]float64{
		"trend":      trendToScore(features.Trend),
		"fear_greed": fearGreedIndex(features, funding, longShort),
	}
	signals := map[string]models.SignalDirection{
		"market_trend": trendDirection(features.Trend),
	}

	if funding != nil {
		components["funding"] = fundingScore(*funding)
		signals["funding_bias"] = directionOfScore(components["funding"], 5)
	}
	if longShort != nil {
		components["long_short"] = longShortScore(*longShort)
	}
	if view.Sentiment != nil && len(view.Sentiment.Liquidations) > 0 {
		components["liquidations"] = liquidationScore(view.Sentiment.Liquidations)
	}

	meta := map[string]interface{}{
		"market_trend":      string(features.Trend),
		"price_change_24h":  features.PriceChange24h,
		"volume_change_24h": features.VolumeChange24h,
		"volatility_24h":    features.Volatility24h,
	}
	if oi, ok := resolveOpenInterest(view.Sentiment, snap.Ticker); ok {
		meta["open_interest"] = oi
	}

	return sanitize(models.IndicatorResult{
		Score:      weightedMean(components, sentimentSubWeights),
		Components: components,
		Signals:    signals,
		Metadata:   meta,
	}), nil
}

// resolveOpenInterest picks the open-interest value from the sentiment map,
// falling back to the ticker field when the map carries no value.
func resolveOpenInterest(s *models.Sentiment, ticker *models.Ticker) (float64, bool) {
	if s != nil {
		if v, ok := s.OpenInterest["value"]; ok && numeric.IsFinite(v) {
			return v, true
		}
	}
	if ticker != nil && ticker.OpenInterest != nil && numeric.IsFinite(*ticker.OpenInterest) {
		return *ticker.OpenInterest, true
	}
	return 0, false
}

// positioningInputs resolves funding rate and long/short ratio from raw
// sentiment first, falling back to the ticker. Non-finite values are treated
// as absent.
func positioningInputs(view *shaper.SentimentView, ticker *models.Ticker) (funding, longShort *float64) {
	if view.Sentiment != nil {
		funding = finitePtr(view.Sentiment.FundingRate)
		longShort = finitePtr(view.Sentiment.LongShortRatio)
	}
	if funding == nil && ticker != nil {
		funding = finitePtr(ticker.FundingRate)
	}
	return funding, longShort
}

func finitePtr(p *float64) *float64 {
	if p == nil || !numeric.IsFinite(*p) {
		return nil
	}
	return p
}

// deriveFeatures computes the 24-hour enriched features from ticker and the
// coarsest available OHLCV frame.
func deriveFeatures(view *shaper.SentimentView) enrichedFeatures {
	f := enrichedFeatures{Trend: TrendNeutral}

	frame := coarsestFrame(view.OHLCV)
	if view.Ticker != nil && view.Ticker.Percentage != nil && numeric.IsFinite(*view.Ticker.Percentage) {
		f.PriceChange24h = *view.Ticker.Percentage
	} else if frame.Len() >= 2 {
		bars := frame.Bars
		first, last := bars[0].Close, bars[len(bars)-1].Close
		f.PriceChange24h = numeric.SafeRatio(last-first, first, 0, numeric.PriceEpsilon) * 100
	}

	if frame.Len() >= 4 {
		bars := frame.Bars
		half := len(bars) / 2
		recent := numeric.Mean(frame.Volumes()[half:])
		earlier := numeric.Mean(frame.Volumes()[:half])
		f.VolumeChange24h = numeric.SafeRatio(recent-earlier, earlier, 0, numeric.VolumeEpsilon) * 100

		ranges := make([]float64, 0, len(bars))
		for _, b := range bars {
			if b.Close > 0 {
				ranges = append(ranges, (b.High-b.Low)/b.Close)
			}
		}
		f.Volatility24h = numeric.StdDev(ranges)
	}

	f.Trend = classifyTrend(f.PriceChange24h, f.Volatility24h)
	return f
}

// coarsestFrame prefers the htf frame, walking toward base.
func coarsestFrame(frames map[models.Timeframe]*models.OHLCVFrame) *models.OHLCVFrame {
	for i := len(models.Timeframes) - 1; i >= 0; i-- {
		if f, ok := frames[models.Timeframes[i]]; ok && f.Len() > 0 {
			return f
		}
	}
	return &models.OHLCVFrame{}
}

// classifyTrend maps the 24-hour change and volatility onto the regime
// labels. High volatility with a flat price reads as volatile_neutral.
func classifyTrend(changePct, volatility float64) MarketTrend {
	switch {
	case changePct >= 5:
		return TrendStronglyBullish
	case changePct >= 1.5:
		return TrendBullish
	case changePct <= -5:
		return TrendStronglyBearish
	case changePct <= -1.5:
		return TrendBearish
	case volatility > 0.02:
		return TrendVolatileNeutral
	default:
		return TrendNeutral
	}
}

func trendToScore(t MarketTrend) float64 {
	switch t {
	case TrendStronglyBullish:
		return 90
	case TrendBullish:
		return 70
	case TrendBearish:
		return 30
	case TrendStronglyBearish:
		return 10
	default:
		return models.NeutralScore
	}
}

func trendDirection(t MarketTrend) models.SignalDirection {
	switch t {
	case TrendStronglyBullish, TrendBullish:
		return models.DirectionBullish
	case TrendStronglyBearish, TrendBearish:
		return models.DirectionBearish
	default:
		return models.DirectionNeutral
	}
}

// fundingScore reads funding contrarian: deeply positive funding means
// crowded longs paying shorts, which caps upside. Saturation at 10 bps.
func fundingScore(rate float64) float64 {
	return clampScore(50 - 50*numeric.Saturate(rate, 0.001))
}

// longShortScore reads the account ratio contrarian as well: a heavily
// long-skewed crowd scores bearish. Ratio 1.0 is neutral.
func longShortScore(ratio float64) float64 {
	if ratio <= 0 {
		return models.NeutralScore
	}
	skew := math.Log(ratio)
	return clampScore(50 - 50*numeric.Saturate(skew, math.Log(3)))
}

// liquidationScore compares liquidated long volume against liquidated short
// volume: heavy long liquidations read bearish pressure and vice versa.
func liquidationScore(liqs []models.Liquidation) float64 {
	var longVol, shortVol float64
	for _, l := range liqs {
		if l.Size <= 0 || !numeric.IsFinite(l.Size) {
			continue
		}
		// A liquidated long is force-sold, so it prints on the sell side.
		switch l.Side {
		case models.SideSell:
			longVol += l.Size
		case models.SideBuy:
			shortVol += l.Size
		}
	}
	total := longVol + shortVol
	if total < numeric.VolumeEpsilon {
		return models.NeutralScore
	}
	balance := (shortVol - longVol) / total
	return clampScore(50 + 50*balance)
}

// fearGreedIndex is the composite mood index in [0,100]. Coefficients:
// price change 0.35, volume change 0.15, volatility 0.15 (penalty),
// long/short positioning 0.20, funding 0.15. Missing inputs contribute
// their neutral value.
func fearGreedIndex(f enrichedFeatures, funding, longShort *float64) float64 {
	change := 50 + 50*numeric.Saturate(f.PriceChange24h, 10)
	volume := 50 + 50*numeric.Saturate(f.VolumeChange24h, 100)
	volatility := 50 - 50*numeric.Clip(f.Volatility24h/0.05, 0, 1)

	positioning := models.NeutralScore
	if longShort != nil {
		positioning = longShortScore(*longShort)
	}
	fundingComponent := models.NeutralScore
	if funding != nil {
		fundingComponent = fundingScore(*funding)
	}

	idx := 0.35*change + 0.15*volume + 0.15*volatility + 0.20*positioning + 0.15*fundingComponent
	return clampScore(idx)
}

var _ Indicator = (*Sentiment)(nil)
