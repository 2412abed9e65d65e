package shaper

import (
	"github.com/quantflux/confluence/internal/models"
)

// Kind identifies one of the six indicator families a view is shaped for.
type Kind string

const (
	KindTechnical      Kind = "technical"
	KindVolume         Kind = "volume"
	KindOrderbook      Kind = "orderbook"
	KindOrderflow      Kind = "orderflow"
	KindSentiment      Kind = "sentiment"
	KindPriceStructure Kind = "price_structure"
)

// Kinds lists all indicator kinds in fusion order.
var Kinds = []Kind{
	KindTechnical,
	KindVolume,
	KindOrderbook,
	KindOrderflow,
	KindSentiment,
	KindPriceStructure,
}

// TechnicalView feeds the technical indicator: standardized OHLCV frames
// plus the ticker.
type TechnicalView struct {
	OHLCV      map[models.Timeframe]*models.OHLCVFrame
	Ticker     *models.Ticker
	Timeframes []models.Timeframe // tags present, ascending period order
}

// VolumeView feeds the volume indicator.
type VolumeView struct {
	OHLCV           map[models.Timeframe]*models.OHLCVFrame
	ProcessedTrades []models.Trade
	Ticker          *models.Ticker
}

// PressureSummary is the pre-computed top-of-book summary attached to the
// orderbook view.
type PressureSummary struct {
	BidVolume        float64
	AskVolume        float64
	Imbalance        float64 // (bid-ask)/(bid+ask), [-1,1]
	Spread           float64
	SpreadPct        float64
	BidConcentration float64 // share of bid volume at the top level
	AskConcentration float64
}

// OrderbookView feeds the orderbook indicator: a cleaned book with a
// pre-computed pressure summary.
type OrderbookView struct {
	Book      *models.OrderBook
	Trades    []models.Trade
	Ticker    *models.Ticker
	LastPrice float64
	Pressure  PressureSummary
}

// OrderflowView feeds the orderflow indicator.
type OrderflowView struct {
	ProcessedTrades []models.Trade
	Book            *models.OrderBook
	OHLCV           map[models.Timeframe]*models.OHLCVFrame
	OpenInterest    *models.OpenInterest
}

// SentimentView feeds the sentiment indicator. Sentiment may be nil; the
// indicator derives enriched features from ticker and OHLCV in that case.
type SentimentView struct {
	Sentiment *models.Sentiment
	OHLCV     map[models.Timeframe]*models.OHLCVFrame
	Ticker    *models.Ticker
}

// PriceStructureView feeds the price-structure indicator with all four tag
// frames, derived where absent.
type PriceStructureView struct {
	OHLCV  map[models.Timeframe]*models.OHLCVFrame
	Ticker *models.Ticker
}
