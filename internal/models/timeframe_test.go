package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInterval(t *testing.T) {
	tests := []struct {
		label string
		want  Timeframe
	}{
		{"1", TimeframeBase},
		{"1m", TimeframeBase},
		{"5", TimeframeLTF},
		{"5m", TimeframeLTF},
		{"30", TimeframeMTF},
		{"60", TimeframeMTF},
		{"120", TimeframeMTF},
		{"180", TimeframeMTF},
		{"240", TimeframeHTF},
		{"4h", TimeframeHTF},
		{"360", TimeframeHTF},
		{"720", TimeframeHTF},
		{"1440", TimeframeHTF},
		{"1d", TimeframeHTF},
		// Canonical tags pass through.
		{"base", TimeframeBase},
		{"htf", TimeframeHTF},
		// Heuristic fallback for labels outside the table.
		{"15m", TimeframeLTF},
		{"45", TimeframeMTF},
		{"8h", TimeframeHTF},
		{"1w", TimeframeHTF},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ResolveInterval(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveIntervalRejectsGarbage(t *testing.T) {
	for _, label := range []string{"", "abc", "??"} {
		_, err := ResolveInterval(label)
		assert.Error(t, err, "label %q", label)
	}
}

func TestFinerThan(t *testing.T) {
	assert.Equal(t, []Timeframe{TimeframeMTF, TimeframeLTF, TimeframeBase}, TimeframeHTF.FinerThan())
	assert.Equal(t, []Timeframe{TimeframeBase}, TimeframeLTF.FinerThan())
	assert.Nil(t, TimeframeBase.FinerThan())
}

func TestSnapshotValidate(t *testing.T) {
	frame := &OHLCVFrame{Bars: []Bar{{Timestamp: 1, Close: 100}}}

	valid := &MarketSnapshot{
		Symbol:    "BTCUSDT",
		Timestamp: 1700000000000,
		OHLCV:     map[string]*OHLCVFrame{"1m": frame},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		snap *MarketSnapshot
	}{
		{"nil snapshot", nil},
		{"empty symbol", &MarketSnapshot{Timestamp: 1, OHLCV: map[string]*OHLCVFrame{"1m": frame}}},
		{"zero timestamp", &MarketSnapshot{Symbol: "BTCUSDT", OHLCV: map[string]*OHLCVFrame{"1m": frame}}},
		{"no ohlcv", &MarketSnapshot{Symbol: "BTCUSDT", Timestamp: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.snap.Validate())
		})
	}
}

func TestLastPrice(t *testing.T) {
	frame := &OHLCVFrame{Bars: []Bar{{Timestamp: 1, Close: 101}, {Timestamp: 2, Close: 102}}}
	snap := &MarketSnapshot{
		Symbol:    "BTCUSDT",
		Timestamp: 1,
		OHLCV:     map[string]*OHLCVFrame{string(TimeframeBase): frame},
	}
	assert.Equal(t, 102.0, snap.LastPrice())

	snap.Ticker = &Ticker{Last: 103}
	assert.Equal(t, 103.0, snap.LastPrice())
}

func TestOrderBookMid(t *testing.T) {
	book := &OrderBook{
		Bids: []BookLevel{{Price: 99, Size: 1}},
		Asks: []BookLevel{{Price: 101, Size: 1}},
	}
	mid, ok := book.Mid()
	assert.True(t, ok)
	assert.Equal(t, 100.0, mid)

	crossed := &OrderBook{
		Bids: []BookLevel{{Price: 101, Size: 1}},
		Asks: []BookLevel{{Price: 99, Size: 1}},
	}
	_, ok = crossed.Mid()
	assert.False(t, ok)
}
