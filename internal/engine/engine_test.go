package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/confluence"
	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/shaper"
	"github.com/quantflux/confluence/internal/signal"
	"github.com/quantflux/confluence/internal/supplier"
)

type countingRecorder struct {
	ch chan models.QualityRecord
}

func (c *countingRecorder) Record(rec models.QualityRecord) error {
	c.ch <- rec
	return nil
}

func engineSnapshot(symbol string) *models.MarketSnapshot {
	frame := &models.OHLCVFrame{Bars: make([]models.Bar, 60)}
	price := 100.0
	for i := range frame.Bars {
		frame.Bars[i] = models.Bar{
			Timestamp: int64(1700000000000 + i*60000),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.2,
			Volume:    100,
		}
		price += 0.2
	}
	return &models.MarketSnapshot{
		Symbol:    symbol,
		Timestamp: 1700003600000,
		OHLCV:     map[string]*models.OHLCVFrame{"1m": frame},
		Ticker:    &models.Ticker{Last: price},
	}
}

func TestEngineRunsPipeline(t *testing.T) {
	cfg := config.Default()
	log := zerolog.Nop()

	ch := make(chan *models.MarketSnapshot, 1)
	ch <- engineSnapshot("BTCUSDT")
	sup := supplier.NewChannelSupplier(ch)

	rec := &countingRecorder{ch: make(chan models.QualityRecord, 1)}
	analyzer := confluence.New(shaper.New(log), cfg, log)
	generator := signal.NewGenerator(cfg, signal.NewMemoryCooldownStore(), rec, nil, log)
	e := New(sup, analyzer, generator, []string{"BTCUSDT"}, 10*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// One snapshot makes it through analysis to the recorder.
	select {
	case qr := <-rec.ch:
		assert.Equal(t, "BTCUSDT", qr.Symbol)
	case <-time.After(5 * time.Second):
		t.Fatal("no quality record produced")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}

func TestEngineStopsWhenSupplierCloses(t *testing.T) {
	cfg := config.Default()
	log := zerolog.Nop()

	ch := make(chan *models.MarketSnapshot)
	close(ch)
	sup := supplier.NewChannelSupplier(ch)

	analyzer := confluence.New(shaper.New(log), cfg, log)
	generator := signal.NewGenerator(cfg, signal.NewMemoryCooldownStore(), nil, nil, log)
	e := New(sup, analyzer, generator, []string{"BTCUSDT", "ETHUSDT"}, 10*time.Millisecond, log)

	// Run must return on its own; no cancel needed.
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop when the supplier closed")
	}
}
