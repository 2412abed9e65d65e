package confluence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

func equalScores(value float64) map[string]float64 {
	return map[string]float64{
		"technical": value,
		"volume":    value,
		"orderbook": value,
		"orderflow": value,
		"sentiment": value,
		"structure": value,
	}
}

func TestFusePerfectAgreement(t *testing.T) {
	weights := config.Default().Confluence.Weights.Components

	t.Run("all bullish", func(t *testing.T) {
		f := Fuse(equalScores(100), weights)
		assert.Equal(t, 0.0, f.Disagreement)
		assert.Equal(t, 1.0, f.Consensus)
		assert.Equal(t, 100.0, f.Score)
		assert.Equal(t, 1.0, f.Confidence)
		assert.Equal(t, 0.0, f.QualityImpact)
	})

	t.Run("all bearish", func(t *testing.T) {
		f := Fuse(equalScores(0), weights)
		assert.Equal(t, 0.0, f.Disagreement)
		assert.Equal(t, 1.0, f.Consensus)
		assert.Equal(t, 0.0, f.Score)
		assert.Equal(t, 1.0, f.Confidence)
	})

	t.Run("all neutral", func(t *testing.T) {
		f := Fuse(equalScores(50), weights)
		assert.Equal(t, 1.0, f.Consensus)
		assert.Equal(t, 0.0, f.ScoreRaw)
		assert.Equal(t, 0.0, f.Confidence)
		// A raw-neutral set still pays the consensus discount on base 50.
		assert.InDelta(t, 50.0, f.Score, 1e-9)
	})
}

func TestFuseExtremeSplitPunished(t *testing.T) {
	weights := config.Default().Confluence.Weights.Components
	scores := map[string]float64{
		"technical": 95, "volume": 95, "orderbook": 95,
		"orderflow": 10, "sentiment": 10, "structure": 10,
	}
	f := Fuse(scores, weights)
	assert.Greater(t, f.Disagreement, 0.3)
	assert.Less(t, f.Consensus, 0.55)
	// The quality adjustment drags the split well under its naive mean.
	assert.Less(t, f.Score, f.ScoreBase)
	assert.Negative(t, f.QualityImpact)
}

func TestFuseSingleIndicator(t *testing.T) {
	f := Fuse(map[string]float64{"technical": 80}, map[string]float64{"technical": 0.25})
	assert.Equal(t, 0.0, f.Disagreement)
	assert.Equal(t, 1.0, f.Consensus)
	// Weight renormalizes to 1 over the single present indicator.
	assert.InDelta(t, 0.6, f.ScoreRaw, 1e-9)
	assert.Equal(t, 80.0, f.Score)
}

func TestFuseRenormalizesOverPresent(t *testing.T) {
	weights := map[string]float64{"a": 0.6, "b": 0.3, "c": 0.1}
	// Only a and b present: effective weights 2/3 and 1/3.
	f := Fuse(map[string]float64{"a": 100, "b": 50}, weights)
	assert.InDelta(t, 2.0/3.0, f.ScoreRaw, 1e-9)
}

func TestFuseUnweightedScoresFallBackToEqualWeight(t *testing.T) {
	f := Fuse(map[string]float64{"x": 100, "y": 0}, map[string]float64{})
	assert.InDelta(t, 0.0, f.ScoreRaw, 1e-9)
	assert.Greater(t, f.Disagreement, 0.3)
}

func TestFuseEmptyIsNeutral(t *testing.T) {
	f := Fuse(nil, nil)
	assert.Equal(t, models.NeutralScore, f.Score)
	assert.Equal(t, models.NeutralScore, f.ScoreBase)
	assert.Equal(t, 1.0, f.Consensus)
	assert.Equal(t, 0.0, f.Confidence)
}

func TestFuseConfidenceTracksConsensusAndMagnitude(t *testing.T) {
	weights := config.Default().Confluence.Weights.Components

	strong := Fuse(equalScores(90), weights)
	mild := Fuse(equalScores(60), weights)
	assert.Greater(t, strong.Confidence, mild.Confidence)

	split := Fuse(map[string]float64{
		"technical": 90, "volume": 90, "orderbook": 90,
		"orderflow": 30, "sentiment": 30, "structure": 30,
	}, weights)
	assert.Less(t, split.Confidence, strong.Confidence)
}
