package signal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

type captureRecorder struct {
	records []models.QualityRecord
	err     error
}

func (c *captureRecorder) Record(rec models.QualityRecord) error {
	c.records = append(c.records, rec)
	return c.err
}

type failingStore struct{}

func (failingStore) Last(context.Context, string, models.SignalType) (time.Time, bool, error) {
	return time.Time{}, false, assert.AnError
}
func (failingStore) Record(context.Context, string, models.SignalType, time.Time) error {
	return assert.AnError
}
func (failingStore) Close() error { return nil }

func passingFusion(symbol string, score float64) models.FusionResult {
	return models.FusionResult{
		Symbol:       symbol,
		Timestamp:    time.Now().UnixMilli(),
		Score:        score,
		ScoreBase:    score,
		Consensus:    0.9,
		Confidence:   0.6,
		Disagreement: 0.05,
		Price:        50000,
		Components: map[string]models.IndicatorResult{
			"technical": {Score: score},
			"volume":    {Score: score},
		},
	}
}

func newGenerator(rec Recorder) *Generator {
	return NewGenerator(config.Default(), NewMemoryCooldownStore(), rec, nil, zerolog.Nop())
}

func TestGenerateBuySignal(t *testing.T) {
	rec := &captureRecorder{}
	g := newGenerator(rec)

	sig := g.Generate(context.Background(), passingFusion("BTCUSDT", 75))
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalBuy, sig.Type)
	assert.Equal(t, models.StrengthStrong, sig.Strength)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, 75.0, sig.Score)
	assert.Equal(t, 50000.0, sig.Price)
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, 75.0, sig.Components["technical"])
	assert.Equal(t, 68.0, sig.Thresholds.Buy)
	assert.Equal(t, 35.0, sig.Thresholds.Sell)

	require.Len(t, rec.records, 1)
	assert.False(t, rec.records[0].Filtered)
	assert.Equal(t, models.SignalBuy, rec.records[0].SignalType)
}

func TestGenerateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  models.SignalType
	}{
		{68, models.SignalBuy}, // inclusive
		{67.9, models.SignalHold},
		{35, models.SignalSell}, // inclusive
		{35.1, models.SignalHold},
		{100, models.SignalBuy},
		{0, models.SignalSell},
	}
	for _, tt := range tests {
		rec := &captureRecorder{}
		g := newGenerator(rec)
		sig := g.Generate(context.Background(), passingFusion("BTCUSDT", tt.score))
		if tt.want == models.SignalHold {
			assert.Nil(t, sig, "score %v", tt.score)
			// Held results are still recorded.
			require.Len(t, rec.records, 1)
			assert.Equal(t, models.SignalHold, rec.records[0].SignalType)
			assert.False(t, rec.records[0].Filtered)
		} else {
			require.NotNil(t, sig, "score %v", tt.score)
			assert.Equal(t, tt.want, sig.Type)
		}
	}
}

func TestClassifyNeutralBuffer(t *testing.T) {
	cfg := config.Default()
	cfg.Confluence.Thresholds.Buy = 52
	cfg.Confluence.Thresholds.Sell = 48
	cfg.Confluence.Thresholds.NeutralBuffer = 5
	g := NewGenerator(cfg, NewMemoryCooldownStore(), nil, nil, zerolog.Nop())

	// Thresholds tuned inside the buffer zone cannot fire near neutral.
	tests := []struct {
		score float64
		want  models.SignalType
	}{
		{53, models.SignalHold},
		{55, models.SignalBuy},
		{46, models.SignalHold},
		{45, models.SignalSell},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.classify(tt.score), "score %v", tt.score)
	}

	// With no buffer the raw thresholds decide.
	cfg.Confluence.Thresholds.NeutralBuffer = 0
	g = NewGenerator(cfg, NewMemoryCooldownStore(), nil, nil, zerolog.Nop())
	assert.Equal(t, models.SignalBuy, g.classify(53))
	assert.Equal(t, models.SignalSell, g.classify(47))
}

func TestGenerateQualityFilter(t *testing.T) {
	t.Run("low confidence", func(t *testing.T) {
		rec := &captureRecorder{}
		g := newGenerator(rec)
		fusion := passingFusion("BTCUSDT", 90)
		fusion.Confidence = 0.1

		assert.Nil(t, g.Generate(context.Background(), fusion))
		require.Len(t, rec.records, 1)
		assert.True(t, rec.records[0].Filtered)
		assert.Equal(t, "low_confidence", rec.records[0].FilterReason)
	})

	t.Run("high disagreement", func(t *testing.T) {
		rec := &captureRecorder{}
		g := newGenerator(rec)
		fusion := passingFusion("BTCUSDT", 90)
		fusion.Disagreement = 0.5

		assert.Nil(t, g.Generate(context.Background(), fusion))
		require.Len(t, rec.records, 1)
		assert.Equal(t, "high_disagreement", rec.records[0].FilterReason)
	})

	t.Run("disabled filter passes everything", func(t *testing.T) {
		cfg := config.Default()
		cfg.Confluence.QualityFilter.Enabled = false
		g := NewGenerator(cfg, NewMemoryCooldownStore(), nil, nil, zerolog.Nop())

		fusion := passingFusion("BTCUSDT", 90)
		fusion.Confidence = 0.01
		fusion.Disagreement = 0.9
		assert.NotNil(t, g.Generate(context.Background(), fusion))
	})
}

func TestStrengthBuckets(t *testing.T) {
	tests := []struct {
		sigType models.SignalType
		score   float64
		want    models.SignalStrength
	}{
		{models.SignalBuy, 85, models.StrengthVeryStrong},
		{models.SignalBuy, 80, models.StrengthVeryStrong},
		{models.SignalBuy, 75, models.StrengthStrong},
		{models.SignalBuy, 69, models.StrengthModerate},
		{models.SignalSell, 15, models.StrengthVeryStrong},
		{models.SignalSell, 20, models.StrengthVeryStrong},
		{models.SignalSell, 25, models.StrengthStrong},
		{models.SignalSell, 34, models.StrengthModerate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Strength(tt.sigType, tt.score), "%s score %v", tt.sigType, tt.score)
	}
}

func TestGenerateCooldown(t *testing.T) {
	g := newGenerator(nil)
	ctx := context.Background()

	first := passingFusion("BTCUSDT", 75)
	require.NotNil(t, g.Generate(ctx, first))

	// Same type inside the window is suppressed.
	repeat := passingFusion("BTCUSDT", 80)
	repeat.Timestamp = first.Timestamp + 60_000
	assert.Nil(t, g.Generate(ctx, repeat))

	// A type flip bypasses the window.
	flip := passingFusion("BTCUSDT", 10)
	flip.Timestamp = first.Timestamp + 60_000
	require.NotNil(t, g.Generate(ctx, flip))

	// The flip does not reset the BUY window: a second BUY inside it stays
	// suppressed even though the most recent dispatch was a SELL.
	oscillate := passingFusion("BTCUSDT", 80)
	oscillate.Timestamp = first.Timestamp + 120_000
	assert.Nil(t, g.Generate(ctx, oscillate))

	// The SELL window runs independently from its own dispatch time.
	sellRepeat := passingFusion("BTCUSDT", 10)
	sellRepeat.Timestamp = first.Timestamp + 120_000
	assert.Nil(t, g.Generate(ctx, sellRepeat))

	// Other symbols are unaffected.
	other := passingFusion("ETHUSDT", 75)
	other.Timestamp = first.Timestamp + 60_000
	assert.NotNil(t, g.Generate(ctx, other))

	// Past the window the same type fires again.
	later := passingFusion("BTCUSDT", 10)
	later.Timestamp = first.Timestamp + 400_000
	assert.NotNil(t, g.Generate(ctx, later))
}

func TestGenerateFailsOpenOnStoreErrors(t *testing.T) {
	g := NewGenerator(config.Default(), failingStore{}, nil, nil, zerolog.Nop())
	sig := g.Generate(context.Background(), passingFusion("BTCUSDT", 75))
	assert.NotNil(t, sig)
}

func TestGenerateSwallowsRecorderErrors(t *testing.T) {
	rec := &captureRecorder{err: assert.AnError}
	g := newGenerator(rec)
	sig := g.Generate(context.Background(), passingFusion("BTCUSDT", 75))
	assert.NotNil(t, sig)
	assert.Len(t, rec.records, 1)
}

func TestQualityRecordTimestampISO(t *testing.T) {
	rec := &captureRecorder{}
	g := newGenerator(rec)

	fusion := passingFusion("BTCUSDT", 75)
	fusion.Timestamp = 1700003600000
	g.Generate(context.Background(), fusion)

	require.Len(t, rec.records, 1)
	parsed, err := time.Parse(time.RFC3339Nano, rec.records[0].TimestampISO)
	require.NoError(t, err)
	assert.Equal(t, fusion.Timestamp, parsed.UnixMilli())
}
