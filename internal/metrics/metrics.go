// Package metrics defines the Prometheus collectors for the confluence
// pipeline and the helpers the pipeline stages record through.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded filter reasons for signal metrics labels.
const (
	FilterReasonLowConfidence    = "low_confidence"
	FilterReasonHighDisagreement = "high_disagreement"
	FilterReasonCooldown         = "cooldown"
	FilterReasonNone             = "none"
)

// Analysis pipeline metrics
var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_analyses_total",
		Help: "Total number of snapshot analyses by symbol",
	}, []string{"symbol"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "confluence_analysis_duration_seconds",
		Help:    "Wall time of a full confluence analysis",
		Buckets: prometheus.DefBuckets,
	})

	AnalysisScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "confluence_analysis_score",
		Help: "Latest quality-adjusted confluence score by symbol",
	}, []string{"symbol"})

	AnalysisConfidence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "confluence_analysis_confidence",
		Help: "Latest fusion confidence by symbol (0.0 to 1.0)",
	}, []string{"symbol"})

	IndicatorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "confluence_indicator_duration_seconds",
		Help:    "Wall time of one indicator calculation",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"indicator"})

	IndicatorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_indicator_failures_total",
		Help: "Indicator runs excluded from fusion by an error",
	}, []string{"indicator"})
)

// Signal generation metrics
var (
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_signals_generated_total",
		Help: "Dispatched signals by symbol and type",
	}, []string{"symbol", "type"})

	SignalsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_signals_filtered_total",
		Help: "Signals suppressed by the quality filter or cooldown",
	}, []string{"reason"})

	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_sink_errors_total",
		Help: "Delivery failures by sink",
	}, []string{"sink"})

	SinkQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "confluence_sink_queue_depth",
		Help: "Signals waiting in the dispatch queue",
	})
)

// Supplier metrics
var (
	SnapshotsSupplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_snapshots_supplied_total",
		Help: "Market snapshots produced by the supplier",
	}, []string{"symbol"})

	SupplierErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_supplier_errors_total",
		Help: "Supplier fetch failures by symbol",
	}, []string{"symbol"})
)

// ObserveIndicator records one indicator run.
func ObserveIndicator(name string, d time.Duration, ok bool) {
	IndicatorDuration.WithLabelValues(name).Observe(d.Seconds())
	if !ok {
		IndicatorFailures.WithLabelValues(name).Inc()
	}
}

// ObserveAnalysis records one completed analysis.
func ObserveAnalysis(symbol string, d time.Duration, score, confidence float64) {
	AnalysesTotal.WithLabelValues(symbol).Inc()
	AnalysisDuration.Observe(d.Seconds())
	AnalysisScore.WithLabelValues(symbol).Set(score)
	AnalysisConfidence.WithLabelValues(symbol).Set(confidence)
}
