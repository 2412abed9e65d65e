// Package numeric provides the safe arithmetic primitives used throughout
// the indicator and fusion math: guarded ratios, clipping, and fixed-decimal
// helpers for the calculations where float64 precision is not enough.
package numeric

import (
	"math"

	"github.com/shopspring/decimal"
)

// Named epsilons for the denominators each data domain produces.
const (
	VolumeEpsilon  = 1e-12
	PriceEpsilon   = 1e-9
	OIEpsilon      = 1e-6
	GeneralEpsilon = 1e-10

	// MaxCVDValue bounds the cumulative volume delta; anything beyond it
	// is treated as an upstream anomaly.
	MaxCVDValue = 1e12
)

// SafeRatio returns n/d, or def when |d| < eps or the result would not be
// finite.
func SafeRatio(n, d, def, eps float64) float64 {
	if math.Abs(d) < eps {
		return def
	}
	r := n / d
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return def
	}
	return r
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClipScore bounds v to the 0-100 score scale.
func ClipScore(v float64) float64 {
	return Clip(v, 0, 100)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SanitizeScore replaces non-finite or out-of-range scores with the given
// fallback.
func SanitizeScore(v, fallback float64) float64 {
	if !IsFinite(v) {
		return fallback
	}
	return ClipScore(v)
}

// DecimalRatio computes n/d in fixed-decimal arithmetic and returns the
// result as float64, clipped to [-1, 1]. Used at the CVD ratio step where
// very large volumes lose precision in float64.
func DecimalRatio(n, d float64) float64 {
	if math.Abs(d) < VolumeEpsilon || !IsFinite(n) || !IsFinite(d) {
		return 0
	}
	num := decimal.NewFromFloat(n)
	den := decimal.NewFromFloat(d)
	if den.IsZero() {
		return 0
	}
	r, _ := num.DivRound(den, 12).Float64()
	return Clip(r, -1, 1)
}

// DecimalChangePct computes (current-previous)/previous*100 in fixed-decimal
// arithmetic. The denominator is floored at eps to keep the result bounded.
func DecimalChangePct(current, previous, eps float64) float64 {
	den := math.Max(math.Abs(previous), eps)
	prev := decimal.NewFromFloat(den)
	diff := decimal.NewFromFloat(current).Sub(decimal.NewFromFloat(previous))
	r, _ := diff.DivRound(prev, 12).Mul(decimal.NewFromInt(100)).Float64()
	if !IsFinite(r) {
		return 0
	}
	return r
}

// Saturate maps v/threshold to [-1,1] with hard clipping at the saturation
// threshold: |v| >= threshold yields full strength on its side.
func Saturate(v, threshold float64) float64 {
	if threshold < GeneralEpsilon {
		return 0
	}
	return Clip(v/threshold, -1, 1)
}
