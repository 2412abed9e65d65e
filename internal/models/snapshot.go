// Package models defines the data structures exchanged between the
// confluence pipeline stages: market snapshots coming in, indicator and
// fusion results in the middle, signals and quality records going out.
package models

import (
	"fmt"
	"math"
)

// TradeSide classifies the aggressor side of a trade.
type TradeSide string

const (
	SideBuy     TradeSide = "buy"
	SideSell    TradeSide = "sell"
	SideUnknown TradeSide = "unknown"
)

// Bar is a single OHLCV candle.
type Bar struct {
	Timestamp int64   `json:"ts_ms"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// OHLCVFrame is an ordered sequence of bars for one timeframe,
// strictly increasing in timestamp.
type OHLCVFrame struct {
	Bars []Bar `json:"bars"`
}

// Len returns the number of bars in the frame.
func (f *OHLCVFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Bars)
}

// Closes returns the close column as a slice.
func (f *OHLCVFrame) Closes() []float64 {
	if f == nil {
		return nil
	}
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume column as a slice.
func (f *OHLCVFrame) Volumes() []float64 {
	if f == nil {
		return nil
	}
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.Volume
	}
	return out
}

// LastClose returns the most recent close, or 0 when the frame is empty.
func (f *OHLCVFrame) LastClose() float64 {
	if f == nil || len(f.Bars) == 0 {
		return 0
	}
	return f.Bars[len(f.Bars)-1].Close
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook holds bid and ask ladders for one instant. Bids are ordered
// descending in price, asks ascending.
type OrderBook struct {
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp int64       `json:"timestamp_ms"`
}

// BestBid returns the top bid level and whether one exists.
func (b *OrderBook) BestBid() (BookLevel, bool) {
	if b == nil || len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level and whether one exists.
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Mid returns the mid price. It is valid only when both sides are
// non-empty and the book is not crossed.
func (b *OrderBook) Mid() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA || ask.Price <= bid.Price {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Trade is a single executed trade.
type Trade struct {
	ID        string    `json:"id"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      TradeSide `json:"side"`
	Timestamp int64     `json:"ts_ms"`
}

// Ticker carries the latest quote summary for a symbol.
type Ticker struct {
	Last         float64  `json:"last"`
	Bid          float64  `json:"bid"`
	Ask          float64  `json:"ask"`
	High         float64  `json:"high"`
	Low          float64  `json:"low"`
	Volume       float64  `json:"volume"`
	Percentage   *float64 `json:"percentage,omitempty"`
	FundingRate  *float64 `json:"funding_rate,omitempty"`
	OpenInterest *float64 `json:"open_interest,omitempty"`
}

// OpenInterest is a pair of consecutive open-interest readings.
type OpenInterest struct {
	Current   float64 `json:"current"`
	Previous  float64 `json:"previous"`
	Timestamp int64   `json:"timestamp_ms"`
}

// Liquidation is a single forced liquidation event.
type Liquidation struct {
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      TradeSide `json:"side"`
	Timestamp int64     `json:"ts_ms"`
}

// Sentiment carries derivatives positioning data.
type Sentiment struct {
	FundingRate    *float64           `json:"funding_rate,omitempty"`
	LongShortRatio *float64           `json:"long_short_ratio,omitempty"`
	Liquidations   []Liquidation      `json:"liquidations,omitempty"`
	OpenInterest   map[string]float64 `json:"open_interest,omitempty"`
}

// MarketSnapshot is one multi-source sample for one symbol at one instant.
// Optional sections are nil when the upstream source did not provide them.
// OHLCV keys are whatever interval labels the source used; the shaper
// resolves them to canonical timeframe tags.
type MarketSnapshot struct {
	Symbol       string                 `json:"symbol"`
	Exchange     string                 `json:"exchange"`
	Timestamp    int64                  `json:"timestamp_ms"`
	OHLCV        map[string]*OHLCVFrame `json:"ohlcv"`
	OrderBook    *OrderBook             `json:"orderbook,omitempty"`
	Trades       []Trade                `json:"trades,omitempty"`
	Ticker       *Ticker                `json:"ticker,omitempty"`
	OpenInterest *OpenInterest          `json:"open_interest,omitempty"`
	Sentiment    *Sentiment             `json:"sentiment,omitempty"`
}

// Validate performs the top-level structural check: non-empty symbol,
// positive timestamp and at least one OHLCV frame.
func (s *MarketSnapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if s.Symbol == "" {
		return fmt.Errorf("snapshot has empty symbol")
	}
	if s.Timestamp <= 0 {
		return fmt.Errorf("snapshot for %s has non-positive timestamp %d", s.Symbol, s.Timestamp)
	}
	if len(s.OHLCV) == 0 {
		return fmt.Errorf("snapshot for %s has no OHLCV data", s.Symbol)
	}
	return nil
}

// LastPrice resolves the best-known last traded price: ticker last, then
// the base-timeframe close, then any frame close.
func (s *MarketSnapshot) LastPrice() float64 {
	if s.Ticker != nil && s.Ticker.Last > 0 {
		return s.Ticker.Last
	}
	if f, ok := s.OHLCV[string(TimeframeBase)]; ok && f.Len() > 0 {
		return f.LastClose()
	}
	for _, f := range s.OHLCV {
		if c := f.LastClose(); c > 0 {
			return c
		}
	}
	return 0
}

// Finite reports whether every field of the bar is a finite number.
func (b Bar) Finite() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
