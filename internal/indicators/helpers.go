package indicators

import (
	"math"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
)

// clampScore replaces non-finite scores with neutral and bounds the rest to
// [0,100].
func clampScore(v float64) float64 {
	return numeric.SanitizeScore(v, models.NeutralScore)
}

// sliceToChan feeds a slice into a closed channel, the input form the
// streaming indicator library expects.
func sliceToChan(values []float64) <-chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

// lastValue drains a result channel and returns the final value.
func lastValue(ch <-chan float64) (float64, bool) {
	var last float64
	ok := false
	for v := range ch {
		if numeric.IsFinite(v) {
			last = v
			ok = true
		}
	}
	return last, ok
}

// weightedMean combines sub-scores with the given weights, normalizing over
// the entries actually present. Returns neutral when nothing is present.
func weightedMean(scores map[string]float64, weights map[string]float64) float64 {
	sum, wsum := 0.0, 0.0
	for name, score := range scores {
		w, ok := weights[name]
		if !ok {
			continue
		}
		sum += score * w
		wsum += w
	}
	if wsum < numeric.GeneralEpsilon {
		return models.NeutralScore
	}
	return clampScore(sum / wsum)
}

// priceChangeFraction returns the fractional change between the last two
// closes of a frame, or 0 when fewer than two bars exist.
func priceChangeFraction(frame *models.OHLCVFrame) float64 {
	if frame.Len() < 2 {
		return 0
	}
	bars := frame.Bars
	prev := bars[len(bars)-2].Close
	last := bars[len(bars)-1].Close
	return numeric.SafeRatio(last-prev, prev, 0, numeric.PriceEpsilon)
}

// rangeVolumeValidity scores how well bar ranges are confirmed by volume: a
// positive correlation between |close-open| and volume over the window means
// moves are backed by participation. Returns a score in [0,100], neutral on
// insufficient data.
func rangeVolumeValidity(frame *models.OHLCVFrame) float64 {
	if frame.Len() < DefaultLookback {
		return models.NeutralScore
	}
	bars := frame.Bars[frame.Len()-DefaultLookback:]
	ranges := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		ranges[i] = math.Abs(b.Close - b.Open)
		volumes[i] = b.Volume
	}
	corr := correlation(ranges, volumes)
	if !numeric.IsFinite(corr) {
		return models.NeutralScore
	}
	return clampScore(50 + 50*corr)
}

// DefaultLookback is the window most sub-scores compute over.
const DefaultLookback = 20

// correlation returns the Pearson correlation of two equal-length slices,
// or 0 when either side has no variance.
func correlation(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) == 0 {
		return 0
	}
	mx := numeric.Mean(xs)
	my := numeric.Mean(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx < numeric.GeneralEpsilon || vy < numeric.GeneralEpsilon {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// directionOf maps a signed value to a tri-state direction using a dead
// zone around zero.
func directionOf(v, deadZone float64) models.SignalDirection {
	switch {
	case v > deadZone:
		return models.DirectionBullish
	case v < -deadZone:
		return models.DirectionBearish
	default:
		return models.DirectionNeutral
	}
}

// directionOfScore maps a 0-100 score to a tri-state direction with a dead
// zone around neutral.
func directionOfScore(score, deadZone float64) models.SignalDirection {
	return directionOf(score-models.NeutralScore, deadZone)
}
