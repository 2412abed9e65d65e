package tracker

import (
	"time"

	"github.com/quantflux/confluence/internal/models"
	"github.com/quantflux/confluence/internal/numeric"
)

// MetricSummary is the five-number summary of one quality metric.
type MetricSummary struct {
	Min    float64 `json:"min"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stdev"`
}

// Statistics summarizes the retained records inside a time window.
type Statistics struct {
	WindowHours int                      `json:"window_hours"`
	Symbol      string                   `json:"symbol,omitempty"`
	Total       int                      `json:"total"`
	Filtered    int                      `json:"filtered"`
	FilterRate  float64                  `json:"filter_rate"`
	Metrics     map[string]MetricSummary `json:"metrics"`
}

// FilterEffectiveness compares the quality metrics of filtered records
// against the ones that passed.
type FilterEffectiveness struct {
	WindowHours   int                `json:"window_hours"`
	FilteredCount int                `json:"filtered_count"`
	PassedCount   int                `json:"passed_count"`
	FilteredMeans map[string]float64 `json:"filtered_means"`
	PassedMeans   map[string]float64 `json:"passed_means"`
	Reasons       map[string]int     `json:"reasons"`
}

// metricColumns are the quality metrics summarized by the queries.
var metricColumns = map[string]func(models.QualityRecord) float64{
	"score_adjusted": func(r models.QualityRecord) float64 { return r.ScoreAdjusted },
	"score_base":     func(r models.QualityRecord) float64 { return r.ScoreBase },
	"quality_impact": func(r models.QualityRecord) float64 { return r.QualityImpact },
	"consensus":      func(r models.QualityRecord) float64 { return r.Consensus },
	"confidence":     func(r models.QualityRecord) float64 { return r.Confidence },
	"disagreement":   func(r models.QualityRecord) float64 { return r.Disagreement },
}

// Statistics returns counts, the filter rate, and per-metric summaries over
// the trailing window. An empty symbol covers all symbols.
func (t *Tracker) Statistics(hours int, symbol string) Statistics {
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return Summarize(t.Recent(cutoff, symbol), hours, symbol)
}

// Summarize computes the statistics over an explicit record set; the
// qualitystats CLI uses it over file-loaded records.
func Summarize(records []models.QualityRecord, hours int, symbol string) Statistics {
	stats := Statistics{
		WindowHours: hours,
		Symbol:      symbol,
		Total:       len(records),
		Metrics:     make(map[string]MetricSummary, len(metricColumns)),
	}
	for _, r := range records {
		if r.Filtered {
			stats.Filtered++
		}
	}
	if stats.Total > 0 {
		stats.FilterRate = float64(stats.Filtered) / float64(stats.Total)
	}

	for name, get := range metricColumns {
		values := make([]float64, len(records))
		for i, r := range records {
			values[i] = get(r)
		}
		stats.Metrics[name] = summarize(values)
	}
	return stats
}

// FilterEffectiveness splits the trailing window into filtered and passed
// records and reports the average metrics of each side plus a reason
// histogram.
func (t *Tracker) FilterEffectiveness(hours int) FilterEffectiveness {
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return EffectivenessOf(t.Recent(cutoff, ""), hours)
}

// EffectivenessOf computes filter effectiveness over an explicit record
// set.
func EffectivenessOf(records []models.QualityRecord, hours int) FilterEffectiveness {
	eff := FilterEffectiveness{
		WindowHours:   hours,
		FilteredMeans: make(map[string]float64, len(metricColumns)),
		PassedMeans:   make(map[string]float64, len(metricColumns)),
		Reasons:       make(map[string]int),
	}
	var filtered, passed []models.QualityRecord
	for _, r := range records {
		if r.Filtered {
			filtered = append(filtered, r)
			if r.FilterReason != "" {
				eff.Reasons[r.FilterReason]++
			}
		} else {
			passed = append(passed, r)
		}
	}
	eff.FilteredCount = len(filtered)
	eff.PassedCount = len(passed)

	for name, get := range metricColumns {
		eff.FilteredMeans[name] = meanOf(filtered, get)
		eff.PassedMeans[name] = meanOf(passed, get)
	}
	return eff
}

func summarize(values []float64) MetricSummary {
	if len(values) == 0 {
		return MetricSummary{}
	}
	min, max := numeric.MinMax(values)
	return MetricSummary{
		Min:    min,
		Mean:   numeric.Mean(values),
		Median: numeric.Median(values),
		Max:    max,
		StdDev: numeric.StdDev(values),
	}
}

func meanOf(records []models.QualityRecord, get func(models.QualityRecord) float64) float64 {
	if len(records) == 0 {
		return 0
	}
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = get(r)
	}
	return numeric.Mean(values)
}
