package config

import (
	"fmt"
	"strings"
)

// knownIndicators is the closed set of component names weights may address.
var knownIndicators = map[string]bool{
	"technical":       true,
	"volume":          true,
	"orderflow":       true,
	"sentiment":       true,
	"orderbook":       true,
	"price_structure": true,
}

// Validate checks the configuration for structural errors. It is called
// during Load so a bad configuration fails before any snapshot is accepted.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Confluence.Weights.Components) == 0 {
		errs = append(errs, "confluence.weights.components must not be empty")
	}
	for name, w := range c.Confluence.Weights.Components {
		if !knownIndicators[name] {
			errs = append(errs, fmt.Sprintf("confluence.weights.components: unknown indicator %q", name))
		}
		if w < 0 {
			errs = append(errs, fmt.Sprintf("confluence.weights.components.%s: weight must be non-negative, got %v", name, w))
		}
	}

	th := c.Confluence.Thresholds
	if th.Buy <= 0 || th.Buy > 100 {
		errs = append(errs, fmt.Sprintf("confluence.thresholds.buy: must be in (0,100], got %v", th.Buy))
	}
	if th.Sell < 0 || th.Sell >= 100 {
		errs = append(errs, fmt.Sprintf("confluence.thresholds.sell: must be in [0,100), got %v", th.Sell))
	}
	if th.Buy <= th.Sell {
		errs = append(errs, fmt.Sprintf("confluence.thresholds: buy (%v) must exceed sell (%v)", th.Buy, th.Sell))
	}
	if th.NeutralBuffer < 0 {
		errs = append(errs, fmt.Sprintf("confluence.thresholds.neutral_buffer: must be non-negative, got %v", th.NeutralBuffer))
	}

	qf := c.Confluence.QualityFilter
	if qf.MinConfidence < 0 || qf.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("confluence.quality_filter.min_confidence: must be in [0,1], got %v", qf.MinConfidence))
	}
	if qf.MaxDisagreement < 0 {
		errs = append(errs, fmt.Sprintf("confluence.quality_filter.max_disagreement: must be non-negative, got %v", qf.MaxDisagreement))
	}

	if c.Signal.CooldownSeconds < 0 {
		errs = append(errs, fmt.Sprintf("signal.cooldown_seconds: must be non-negative, got %d", c.Signal.CooldownSeconds))
	}
	if c.Signal.QueueSize <= 0 {
		errs = append(errs, fmt.Sprintf("signal.queue_size: must be positive, got %d", c.Signal.QueueSize))
	}
	switch c.Signal.CooldownStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("signal.cooldown_store: must be \"memory\" or \"redis\", got %q", c.Signal.CooldownStore))
	}

	if c.Orderflow.CVD.SaturationThreshold <= 0 {
		errs = append(errs, fmt.Sprintf("orderflow.cvd.saturation_threshold: must be positive, got %v", c.Orderflow.CVD.SaturationThreshold))
	}
	oi := c.Orderflow.OpenInterest
	if oi.MinimalChangeThreshold < 0 {
		errs = append(errs, fmt.Sprintf("orderflow.open_interest.minimal_change_threshold: must be non-negative, got %v", oi.MinimalChangeThreshold))
	}
	if oi.OISaturationThreshold <= 0 {
		errs = append(errs, fmt.Sprintf("orderflow.open_interest.oi_saturation_threshold: must be positive, got %v", oi.OISaturationThreshold))
	}
	if oi.PriceSaturationThreshold <= 0 {
		errs = append(errs, fmt.Sprintf("orderflow.open_interest.price_saturation_threshold: must be positive, got %v", oi.PriceSaturationThreshold))
	}

	if c.Tracker.LogDir == "" {
		errs = append(errs, "tracker.log_dir must not be empty")
	}
	if c.Tracker.CacheCapacity <= 0 {
		errs = append(errs, fmt.Sprintf("tracker.cache_capacity: must be positive, got %d", c.Tracker.CacheCapacity))
	}

	if c.Budgets.IndicatorSoftMS <= 0 {
		errs = append(errs, fmt.Sprintf("budgets.indicator_soft_ms: must be positive, got %d", c.Budgets.IndicatorSoftMS))
	}
	if c.Budgets.AnalysisHardMS <= 0 {
		errs = append(errs, fmt.Sprintf("budgets.analysis_hard_ms: must be positive, got %d", c.Budgets.AnalysisHardMS))
	}
	if c.Budgets.AnalysisHardMS < c.Budgets.IndicatorSoftMS {
		errs = append(errs, fmt.Sprintf("budgets: analysis_hard_ms (%d) must be at least indicator_soft_ms (%d)",
			c.Budgets.AnalysisHardMS, c.Budgets.IndicatorSoftMS))
	}

	for _, tf := range []struct {
		name     string
		interval string
	}{
		{"base", c.Timeframes.Base.Interval},
		{"ltf", c.Timeframes.LTF.Interval},
		{"mtf", c.Timeframes.MTF.Interval},
		{"htf", c.Timeframes.HTF.Interval},
	} {
		if tf.interval == "" {
			errs = append(errs, fmt.Sprintf("timeframes.%s.interval must not be empty", tf.name))
		}
	}

	if c.Sinks.Webhook.Enabled && c.Sinks.Webhook.URL == "" {
		errs = append(errs, "sinks.webhook.url must be set when the webhook sink is enabled")
	}
	if c.Sinks.NATS.Enabled && c.Sinks.NATS.URL == "" {
		errs = append(errs, "sinks.nats.url must be set when the NATS sink is enabled")
	}
	if c.Signal.CooldownStore == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr must be set when signal.cooldown_store is \"redis\"")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
