// Package config loads and validates engine configuration. All tunables are
// passed in structurally; the analysis core itself never reads environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Confluence ConfluenceConfig `mapstructure:"confluence"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Orderflow  OrderflowConfig  `mapstructure:"orderflow"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Timeframes TimeframesConfig `mapstructure:"timeframes"`
	Budgets    BudgetsConfig    `mapstructure:"budgets"`
	Supplier   SupplierConfig   `mapstructure:"supplier"`
	Sinks      SinksConfig      `mapstructure:"sinks"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// ConfluenceConfig controls the fusion step and its quality filter.
type ConfluenceConfig struct {
	Weights       WeightsConfig       `mapstructure:"weights"`
	Thresholds    ThresholdsConfig    `mapstructure:"thresholds"`
	QualityFilter QualityFilterConfig `mapstructure:"quality_filter"`
}

// WeightsConfig maps the six indicator names to non-negative weights.
// Weights are normalized over the set of present indicators at fusion time.
type WeightsConfig struct {
	Components map[string]float64 `mapstructure:"components"`
}

// ThresholdsConfig holds the signal classification thresholds. NeutralBuffer
// keeps a dead zone of that width on each side of the neutral score even
// when buy/sell are tuned closer to it.
type ThresholdsConfig struct {
	Buy           float64 `mapstructure:"buy"`
	Sell          float64 `mapstructure:"sell"`
	NeutralBuffer float64 `mapstructure:"neutral_buffer"`
}

// QualityFilterConfig gates signal dispatch on fusion quality metrics.
type QualityFilterConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	MinConfidence   float64 `mapstructure:"min_confidence"`
	MaxDisagreement float64 `mapstructure:"max_disagreement"`
}

// SignalConfig controls deduplication and dispatch.
type SignalConfig struct {
	CooldownSeconds int    `mapstructure:"cooldown_seconds"`
	QueueSize       int    `mapstructure:"queue_size"`
	CooldownStore   string `mapstructure:"cooldown_store"` // "memory" or "redis"
}

// Cooldown returns the cooldown window as a duration.
func (c *SignalConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// OrderflowConfig holds the orderflow indicator tunables.
type OrderflowConfig struct {
	CVD          CVDConfig          `mapstructure:"cvd"`
	OpenInterest OpenInterestConfig `mapstructure:"open_interest"`
}

// CVDConfig tunes cumulative volume delta scoring.
type CVDConfig struct {
	SaturationThreshold float64 `mapstructure:"saturation_threshold"`
}

// OpenInterestConfig tunes the four-scenario open-interest classifier.
type OpenInterestConfig struct {
	MinimalChangeThreshold   float64 `mapstructure:"minimal_change_threshold"`
	PriceDirectionThreshold  float64 `mapstructure:"price_direction_threshold"`
	OISaturationThreshold    float64 `mapstructure:"oi_saturation_threshold"`
	PriceSaturationThreshold float64 `mapstructure:"price_saturation_threshold"`
}

// TrackerConfig controls the quality metrics tracker.
type TrackerConfig struct {
	LogDir        string `mapstructure:"log_dir"`
	CacheCapacity int    `mapstructure:"cache_capacity"`
}

// TimeframeConfig names the exchange-native interval label backing one tag.
type TimeframeConfig struct {
	Interval string `mapstructure:"interval"`
}

// TimeframesConfig maps the four canonical tags to exchange intervals.
type TimeframesConfig struct {
	Base TimeframeConfig `mapstructure:"base"`
	LTF  TimeframeConfig `mapstructure:"ltf"`
	MTF  TimeframeConfig `mapstructure:"mtf"`
	HTF  TimeframeConfig `mapstructure:"htf"`
}

// BudgetsConfig holds analysis timing budgets.
type BudgetsConfig struct {
	IndicatorSoftMS int `mapstructure:"indicator_soft_ms"`
	AnalysisHardMS  int `mapstructure:"analysis_hard_ms"`
}

// IndicatorSoft returns the per-indicator soft budget.
func (b *BudgetsConfig) IndicatorSoft() time.Duration {
	return time.Duration(b.IndicatorSoftMS) * time.Millisecond
}

// AnalysisHard returns the whole-analysis hard budget.
func (b *BudgetsConfig) AnalysisHard() time.Duration {
	return time.Duration(b.AnalysisHardMS) * time.Millisecond
}

// SupplierConfig controls the market data supplier.
type SupplierConfig struct {
	Kind           string   `mapstructure:"kind"` // "binance" or "channel"
	Symbols        []string `mapstructure:"symbols"`
	PollIntervalMS int      `mapstructure:"poll_interval_ms"`
	DepthLevels    int      `mapstructure:"depth_levels"`
	TradeWindow    int      `mapstructure:"trade_window"`
	CandleLimit    int      `mapstructure:"candle_limit"`
	Testnet        bool     `mapstructure:"testnet"`
}

// PollInterval returns the per-symbol polling cadence.
func (s *SupplierConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// SinksConfig enables and configures delivery sinks.
type SinksConfig struct {
	Log       LogSinkConfig       `mapstructure:"log"`
	Webhook   WebhookSinkConfig   `mapstructure:"webhook"`
	NATS      NATSSinkConfig      `mapstructure:"nats"`
	WebSocket WebSocketSinkConfig `mapstructure:"websocket"`
}

// LogSinkConfig configures the structured-log sink.
type LogSinkConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WebhookSinkConfig configures HTTP POST delivery.
type WebhookSinkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Timeout returns the webhook request timeout.
func (w *WebhookSinkConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutMS) * time.Millisecond
}

// NATSSinkConfig configures NATS publication.
type NATSSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// WebSocketSinkConfig configures the websocket broadcast hub.
type WebSocketSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// RedisConfig contains Redis settings for the shared cooldown store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MonitoringConfig contains metrics server settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CONFLUENCE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment variables apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration with no file or environment
// overrides applied. It always validates.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config does not unmarshal: %v", err))
	}
	return &cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "confluence-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Confluence defaults
	v.SetDefault("confluence.weights.components", map[string]float64{
		"technical":       0.20,
		"volume":          0.10,
		"orderflow":       0.25,
		"sentiment":       0.15,
		"orderbook":       0.20,
		"price_structure": 0.10,
	})
	v.SetDefault("confluence.thresholds.buy", 68.0)
	v.SetDefault("confluence.thresholds.sell", 35.0)
	v.SetDefault("confluence.thresholds.neutral_buffer", 5.0)
	v.SetDefault("confluence.quality_filter.enabled", true)
	v.SetDefault("confluence.quality_filter.min_confidence", 0.3)
	v.SetDefault("confluence.quality_filter.max_disagreement", 0.3)

	// Signal defaults
	v.SetDefault("signal.cooldown_seconds", 300)
	v.SetDefault("signal.queue_size", 256)
	v.SetDefault("signal.cooldown_store", "memory")

	// Orderflow defaults
	v.SetDefault("orderflow.cvd.saturation_threshold", 0.15)
	v.SetDefault("orderflow.open_interest.minimal_change_threshold", 0.02)
	v.SetDefault("orderflow.open_interest.price_direction_threshold", 0.01)
	v.SetDefault("orderflow.open_interest.oi_saturation_threshold", 2.0)
	v.SetDefault("orderflow.open_interest.price_saturation_threshold", 1.0)

	// Tracker defaults
	v.SetDefault("tracker.log_dir", "logs/quality_metrics")
	v.SetDefault("tracker.cache_capacity", 1000)

	// Timeframe defaults
	v.SetDefault("timeframes.base.interval", "1m")
	v.SetDefault("timeframes.ltf.interval", "5m")
	v.SetDefault("timeframes.mtf.interval", "30m")
	v.SetDefault("timeframes.htf.interval", "4h")

	// Budget defaults
	v.SetDefault("budgets.indicator_soft_ms", 1000)
	v.SetDefault("budgets.analysis_hard_ms", 5000)

	// Supplier defaults
	v.SetDefault("supplier.kind", "binance")
	v.SetDefault("supplier.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("supplier.poll_interval_ms", 5000)
	v.SetDefault("supplier.depth_levels", 50)
	v.SetDefault("supplier.trade_window", 500)
	v.SetDefault("supplier.candle_limit", 200)
	v.SetDefault("supplier.testnet", false)

	// Sink defaults
	v.SetDefault("sinks.log.enabled", true)
	v.SetDefault("sinks.webhook.enabled", false)
	v.SetDefault("sinks.webhook.timeout_ms", 3000)
	v.SetDefault("sinks.nats.enabled", false)
	v.SetDefault("sinks.nats.url", "nats://localhost:4222")
	v.SetDefault("sinks.nats.subject", "confluence.signals")
	v.SetDefault("sinks.websocket.enabled", false)
	v.SetDefault("sinks.websocket.addr", ":8090")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Dump renders the effective configuration as YAML for diagnostics.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}
