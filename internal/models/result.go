package models

import "time"

// SignalDirection is a tri-state condition flag emitted by indicators.
type SignalDirection string

const (
	DirectionBullish SignalDirection = "bullish"
	DirectionBearish SignalDirection = "bearish"
	DirectionNeutral SignalDirection = "neutral"
)

// NeutralScore is the midpoint of the 0-100 indicator scale.
const NeutralScore = 50.0

// IndicatorResult is the output of a single indicator calculation.
// Score is always finite and within [0,100]; 50 means neutral.
type IndicatorResult struct {
	Score      float64                    `json:"score"`
	Components map[string]float64         `json:"components,omitempty"`
	Signals    map[string]SignalDirection `json:"signals,omitempty"`
	Metadata   map[string]interface{}     `json:"metadata,omitempty"`
}

// NeutralResult builds a neutral indicator result with an explanatory reason.
func NeutralResult(reason string) IndicatorResult {
	return IndicatorResult{
		Score:      NeutralScore,
		Components: map[string]float64{},
		Signals:    map[string]SignalDirection{},
		Metadata:   map[string]interface{}{"reason": reason},
	}
}

// FusionResult is the quality-adjusted aggregation of all indicator scores
// for one snapshot.
type FusionResult struct {
	Symbol        string                     `json:"symbol"`
	Timestamp     int64                      `json:"timestamp_ms"`
	Score         float64                    `json:"score"`          // quality-adjusted, [0,100]
	ScoreBase     float64                    `json:"score_base"`     // pre-adjustment, [0,100]
	QualityImpact float64                    `json:"quality_impact"` // Score - ScoreBase
	ScoreRaw      float64                    `json:"score_raw"`      // signed directional, [-1,1]
	Consensus     float64                    `json:"consensus"`      // (0,1]
	Confidence    float64                    `json:"confidence"`     // [0,1]
	Disagreement  float64                    `json:"disagreement"`   // >= 0
	Components    map[string]IndicatorResult `json:"components"`
	Reliability   float64                    `json:"reliability"` // fraction of indicators that completed
	Price         float64                    `json:"price"`
}

// NeutralFusion builds the neutral fallback fusion result used when
// validation fails or nothing completed before the hard budget.
func NeutralFusion(symbol string, timestamp int64) FusionResult {
	return FusionResult{
		Symbol:       symbol,
		Timestamp:    timestamp,
		Score:        NeutralScore,
		ScoreBase:    NeutralScore,
		ScoreRaw:     0,
		Consensus:    1,
		Confidence:   0,
		Disagreement: 0,
		Components:   map[string]IndicatorResult{},
		Reliability:  0,
	}
}

// SignalType is the directional action of a generated signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// SignalStrength buckets how far past its threshold a signal landed.
type SignalStrength string

const (
	StrengthVeryStrong SignalStrength = "very_strong"
	StrengthStrong     SignalStrength = "strong"
	StrengthModerate   SignalStrength = "moderate"
)

// Thresholds records the buy/sell thresholds in effect when a signal was
// generated.
type Thresholds struct {
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

// Signal is an actionable directional signal handed to delivery sinks.
type Signal struct {
	ID           string             `json:"id"`
	Symbol       string             `json:"symbol"`
	Type         SignalType         `json:"type"`
	Strength     SignalStrength     `json:"strength"`
	Score        float64            `json:"score"`
	Consensus    float64            `json:"consensus"`
	Confidence   float64            `json:"confidence"`
	Disagreement float64            `json:"disagreement"`
	Price        float64            `json:"price"`
	Timestamp    int64              `json:"timestamp_ms"`
	Components   map[string]float64 `json:"components"`
	Thresholds   Thresholds         `json:"thresholds"`
}

// QualityRecord is the append-only per-analysis diagnostic record used to
// tune thresholds offline.
type QualityRecord struct {
	TimestampISO  string                 `json:"ts_iso"`
	Timestamp     int64                  `json:"ts_ms"`
	Symbol        string                 `json:"symbol"`
	ScoreAdjusted float64                `json:"score_adjusted"`
	ScoreBase     float64                `json:"score_base"`
	QualityImpact float64                `json:"quality_impact"`
	Consensus     float64                `json:"consensus"`
	Confidence    float64                `json:"confidence"`
	Disagreement  float64                `json:"disagreement"`
	SignalType    SignalType             `json:"signal_type,omitempty"`
	Filtered      bool                   `json:"filtered"`
	FilterReason  string                 `json:"filter_reason,omitempty"`
	Extras        map[string]interface{} `json:"extras,omitempty"`
}

// Time returns the record timestamp as a time.Time.
func (r *QualityRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}
