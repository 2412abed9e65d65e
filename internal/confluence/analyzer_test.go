package confluence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/indicators"
	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/shaper"
)

func analysisFrame(n int, base, step float64) *models.OHLCVFrame {
	frame := &models.OHLCVFrame{Bars: make([]models.Bar, n)}
	price := base
	for i := 0; i < n; i++ {
		frame.Bars[i] = models.Bar{
			Timestamp: int64(1700000000000 + i*60000),
			Open:      price,
			High:      price + 2,
			Low:       price - 2,
			Close:     price + step,
			Volume:    100 + float64(i%5)*20,
		}
		price += step
	}
	return frame
}

func analysisSnapshot() *models.MarketSnapshot {
	funding := 0.0001
	pct := 1.8
	return &models.MarketSnapshot{
		Symbol:    "ETHUSDT",
		Exchange:  "binance",
		Timestamp: 1700003600000,
		OHLCV: map[string]*models.OHLCVFrame{
			"1m": analysisFrame(60, 2000, 1),
			"5m": analysisFrame(60, 1950, 2),
			"4h": analysisFrame(60, 1500, 10),
		},
		OrderBook: &models.OrderBook{
			Bids: []models.BookLevel{
				{Price: 2059, Size: 10}, {Price: 2058, Size: 6}, {Price: 2057, Size: 4},
			},
			Asks: []models.BookLevel{
				{Price: 2061, Size: 5}, {Price: 2062, Size: 3}, {Price: 2063, Size: 2},
			},
			Timestamp: 1700003600000,
		},
		Trades: []models.Trade{
			{ID: "1", Price: 2059, Size: 2, Side: models.SideBuy, Timestamp: 1700003590000},
			{ID: "2", Price: 2060, Size: 1, Side: models.SideSell, Timestamp: 1700003591000},
			{ID: "3", Price: 2061, Size: 3, Side: models.SideBuy, Timestamp: 1700003592000},
		},
		Ticker:       &models.Ticker{Last: 2060, Bid: 2059, Ask: 2061, High: 2070, Low: 2000, Volume: 90000, Percentage: &pct, FundingRate: &funding},
		OpenInterest: &models.OpenInterest{Current: 505000, Previous: 500000, Timestamp: 1700003600000},
	}
}

func newAnalyzer() *Analyzer {
	return New(shaper.New(zerolog.Nop()), config.Default(), zerolog.Nop())
}

func TestAnalyzeRichSnapshot(t *testing.T) {
	a := newAnalyzer()
	result := a.Analyze(context.Background(), analysisSnapshot())

	assert.Equal(t, "ETHUSDT", result.Symbol)
	assert.Equal(t, int64(1700003600000), result.Timestamp)
	assert.Equal(t, 2060.0, result.Price)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 100.0)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)

	// All six indicators can work with this snapshot.
	require.Len(t, result.Components, 6)
	assert.Equal(t, 1.0, result.Reliability)
	assert.InDelta(t, result.Score-result.ScoreBase, result.QualityImpact, 1e-9)
}

func TestAnalyzeInvalidSnapshotIsNeutral(t *testing.T) {
	a := newAnalyzer()

	tests := []struct {
		name string
		snap *models.MarketSnapshot
	}{
		{"nil", nil},
		{"no ohlcv", &models.MarketSnapshot{Symbol: "BTCUSDT", Timestamp: 1}},
		{"no symbol", &models.MarketSnapshot{Timestamp: 1, OHLCV: map[string]*models.OHLCVFrame{"1m": analysisFrame(30, 100, 1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.Analyze(context.Background(), tt.snap)
			assert.Equal(t, models.NeutralScore, result.Score)
			assert.Equal(t, 0.0, result.Reliability)
			assert.Empty(t, result.Components)
		})
	}
}

func TestAnalyzePartialSnapshotDegrades(t *testing.T) {
	a := newAnalyzer()

	// Candles only: orderbook and orderflow have nothing to work with and
	// drop out of fusion instead of failing it.
	snap := &models.MarketSnapshot{
		Symbol:    "BTCUSDT",
		Timestamp: 1700003600000,
		OHLCV: map[string]*models.OHLCVFrame{
			"1m": analysisFrame(60, 100, 0.5),
		},
		Ticker: &models.Ticker{Last: 130},
	}
	result := a.Analyze(context.Background(), snap)

	assert.NotContains(t, result.Components, "orderbook")
	assert.NotContains(t, result.Components, "orderflow")
	assert.Contains(t, result.Components, "technical")
	assert.Greater(t, result.Reliability, 0.0)
	assert.Less(t, result.Reliability, 1.0)
}

// stallingIndicator ignores the context and finishes after a fixed delay.
type stallingIndicator struct {
	name  string
	delay time.Duration
	score float64
}

func (s *stallingIndicator) Name() string { return s.name }

func (s *stallingIndicator) Calculate(context.Context, *models.MarketSnapshot, *indicators.SnapshotCache) (models.IndicatorResult, error) {
	time.Sleep(s.delay)
	return models.IndicatorResult{Score: s.score}, nil
}

func TestAnalyzeHardBudgetBoundsStalledIndicators(t *testing.T) {
	a := &Analyzer{
		indicators: []indicators.Indicator{
			&stallingIndicator{name: "fast", score: 80},
			&stallingIndicator{name: "stalled", delay: 3 * time.Second, score: 10},
		},
		weights: map[string]float64{"fast": 0.5, "stalled": 0.5},
		budgets: config.BudgetsConfig{IndicatorSoftMS: 100, AnalysisHardMS: 150},
		log:     zerolog.Nop(),
	}

	start := time.Now()
	result := a.Analyze(context.Background(), analysisSnapshot())
	elapsed := time.Since(start)

	// The stalled indicator counts as failed; the pass still ends near the
	// hard budget with a fusion over the completed half.
	assert.Less(t, elapsed, time.Second)
	require.Contains(t, result.Components, "fast")
	assert.NotContains(t, result.Components, "stalled")
	assert.Equal(t, 0.5, result.Reliability)
	assert.InDelta(t, 80.0, result.Score, 1e-9)
}

func TestAnalyzeCancelledContext(t *testing.T) {
	a := newAnalyzer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := a.Analyze(ctx, analysisSnapshot())
	assert.Equal(t, 0.0, result.Reliability)
	assert.Equal(t, models.NeutralScore, result.Score)
}
