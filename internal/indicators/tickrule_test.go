package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflux/confluence/internal/models"
)

func TestClassifyTickRule(t *testing.T) {
	prices := []float64{50000, 50100, 50050, 50050, 50150}
	trades := make([]models.Trade, len(prices))
	for i, p := range prices {
		trades[i] = models.Trade{Price: p, Size: 1, Side: models.SideUnknown, Timestamp: int64(i + 1)}
	}

	out, stats := ClassifyTickRule(trades)
	require.Len(t, out, 5)

	want := []models.TradeSide{
		models.SideUnknown, // first trade has no reference
		models.SideBuy,     // 50100 > 50000
		models.SideSell,    // 50050 < 50100
		models.SideUnknown, // 50050 == 50050
		models.SideBuy,     // 50150 > 50050
	}
	for i, side := range want {
		assert.Equal(t, side, out[i].Side, "trade %d", i)
	}
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Classified)
	assert.Equal(t, 2, stats.Unknown)
	assert.InDelta(t, 0.4, stats.UnknownShare, 1e-9)

	// Input slice is not modified.
	for i := range trades {
		assert.Equal(t, models.SideUnknown, trades[i].Side, "input trade %d", i)
	}
}

func TestClassifyTickRuleKeepsKnownSides(t *testing.T) {
	trades := []models.Trade{
		{Price: 100, Size: 1, Side: models.SideSell},
		{Price: 101, Size: 1, Side: models.SideUnknown}, // classified buy off the sell's price
		{Price: 100, Size: 1, Side: models.SideBuy},     // stays buy despite downtick
	}
	out, stats := ClassifyTickRule(trades)
	assert.Equal(t, models.SideSell, out[0].Side)
	assert.Equal(t, models.SideBuy, out[1].Side)
	assert.Equal(t, models.SideBuy, out[2].Side)
	assert.Equal(t, 1, stats.Classified)
	assert.Equal(t, 0, stats.Unknown)
}

func TestSignedVolume(t *testing.T) {
	assert.Equal(t, 2.5, signedVolume(models.Trade{Size: 2.5, Side: models.SideBuy}))
	assert.Equal(t, -2.5, signedVolume(models.Trade{Size: 2.5, Side: models.SideSell}))
	assert.Equal(t, 0.0, signedVolume(models.Trade{Size: 2.5, Side: models.SideUnknown}))
}
