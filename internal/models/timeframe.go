package models

import (
	"fmt"
	"regexp"
	"strconv"
)

// Timeframe is one of the four canonical period tags used internally,
// regardless of exchange-native interval labels.
type Timeframe string

const (
	TimeframeBase Timeframe = "base" // finest granularity, typically 1m
	TimeframeLTF  Timeframe = "ltf"  // low timeframe, typically 5m
	TimeframeMTF  Timeframe = "mtf"  // mid timeframe, typically 30m-3h
	TimeframeHTF  Timeframe = "htf"  // high timeframe, typically 4h-1d
)

// Timeframes lists the canonical tags in ascending period order.
var Timeframes = []Timeframe{TimeframeBase, TimeframeLTF, TimeframeMTF, TimeframeHTF}

// Valid reports whether t is one of the four canonical tags.
func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeBase, TimeframeLTF, TimeframeMTF, TimeframeHTF:
		return true
	}
	return false
}

// intervalTable maps exchange-native interval labels to canonical tags.
// This is the single source of truth; the shaper is its only caller.
var intervalTable = map[string]Timeframe{
	"1":    TimeframeBase,
	"1m":   TimeframeBase,
	"5":    TimeframeLTF,
	"5m":   TimeframeLTF,
	"30":   TimeframeMTF,
	"30m":  TimeframeMTF,
	"60":   TimeframeMTF,
	"1h":   TimeframeMTF,
	"120":  TimeframeMTF,
	"2h":   TimeframeMTF,
	"180":  TimeframeMTF,
	"3h":   TimeframeMTF,
	"240":  TimeframeHTF,
	"4h":   TimeframeHTF,
	"360":  TimeframeHTF,
	"6h":   TimeframeHTF,
	"720":  TimeframeHTF,
	"12h":  TimeframeHTF,
	"1440": TimeframeHTF,
	"1d":   TimeframeHTF,
}

var leadingDigits = regexp.MustCompile(`\d+`)

// ResolveInterval converts an exchange-native interval label to a canonical
// tag. Already-canonical tags pass through. Unknown labels fall back to a
// numeric-prefix heuristic bucketing by minute count; labels with no digits
// are rejected.
func ResolveInterval(label string) (Timeframe, error) {
	if tf := Timeframe(label); tf.Valid() {
		return tf, nil
	}
	if tf, ok := intervalTable[label]; ok {
		return tf, nil
	}
	digits := leadingDigits.FindString(label)
	if digits == "" {
		return "", fmt.Errorf("unresolvable interval label %q", label)
	}
	minutes, err := strconv.Atoi(digits)
	if err != nil || minutes <= 0 {
		return "", fmt.Errorf("unresolvable interval label %q", label)
	}
	// Unit suffixes scale the minute count.
	switch label[len(label)-1] {
	case 'h', 'H':
		minutes *= 60
	case 'd', 'D':
		minutes *= 1440
	case 'w', 'W':
		minutes *= 10080
	}
	switch {
	case minutes <= 1:
		return TimeframeBase, nil
	case minutes <= 15:
		return TimeframeLTF, nil
	case minutes <= 180:
		return TimeframeMTF, nil
	default:
		return TimeframeHTF, nil
	}
}

// FinerThan returns the nearest finer-grained tags in preference order,
// used by the shaper's derivation fallback when a tag is missing.
func (t Timeframe) FinerThan() []Timeframe {
	switch t {
	case TimeframeHTF:
		return []Timeframe{TimeframeMTF, TimeframeLTF, TimeframeBase}
	case TimeframeMTF:
		return []Timeframe{TimeframeLTF, TimeframeBase}
	case TimeframeLTF:
		return []Timeframe{TimeframeBase}
	default:
		return nil
	}
}
