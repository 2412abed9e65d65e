// Package confluence runs the six indicators over a snapshot and fuses
// their scores into a single quality-adjusted result.
package confluence

import (
	"math"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
)

// consensusDecay controls how fast disagreement erodes consensus:
// consensus = exp(-disagreement * consensusDecay).
const consensusDecay = 2.0

// Fusion holds the quality-adjusted aggregation of a score set.
type Fusion struct {
	Score         float64 // quality-adjusted, [0,100]
	ScoreBase     float64 // pre-adjustment, [0,100]
	QualityImpact float64 // Score - ScoreBase
	ScoreRaw      float64 // signed directional, [-1,1]
	Consensus     float64 // (0,1]
	Confidence    float64 // [0,1]
	Disagreement  float64 // population variance of normalized scores
}

// Fuse combines indicator scores into a quality-adjusted fusion. Weights
// are normalized over the indicators actually present, so a missing
// indicator's weight is redistributed proportionally. An empty score set
// fuses to neutral.
func Fuse(scores map[string]float64, weights map[string]float64) Fusion {
	if len(scores) == 0 {
		return Fusion{Score: models.NeutralScore, ScoreBase: models.NeutralScore, Consensus: 1}
	}

	wsum := 0.0
	for name := range scores {
		wsum += weights[name]
	}

	normalized := make([]float64, 0, len(scores))
	raw := 0.0
	for name, score := range scores {
		n := (score - models.NeutralScore) / models.NeutralScore
		normalized = append(normalized, n)
		if wsum > numeric.GeneralEpsilon {
			raw += weights[name] / wsum * n
		} else {
			raw += n / float64(len(scores))
		}
	}
	raw = numeric.Clip(raw, -1, 1)

	disagreement := numeric.PopulationVariance(normalized)
	consensus := math.Exp(-disagreement * consensusDecay)
	confidence := math.Abs(raw) * consensus

	base01 := (raw + 1) / 2
	adjusted01 := base01 * (0.5 + 0.5*consensus)
	score := numeric.ClipScore(adjusted01 * 100)
	baseScore := base01 * 100

	return Fusion{
		Score:         score,
		ScoreBase:     baseScore,
		QualityImpact: score - baseScore,
		ScoreRaw:      raw,
		Consensus:     consensus,
		Confidence:    confidence,
		Disagreement:  disagreement,
	}
}
