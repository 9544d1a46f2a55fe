// Package config loads every runtime tunable named in the core's CLI/config
// surface (buffer sizes, lane batching, pattern window, attention weights,
// fatigue/recovery rates, coordination thresholds, broker connection info,
// logging). Values come from environment variables, an optional config
// file, and built-in defaults, layered by github.com/spf13/viper;
// command-line flags are not bound into the config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default tunables for every component's runtime knobs.
const (
	DefaultProducerBufferCapacity = 1000
	DefaultProducerPollInterval = 100 * time.Millisecond

	DefaultPatternWindow = 30 * time.Second
	DefaultPatternWindowCap = 1000
	DefaultPatternHistoryCap = 100

	DefaultAttentionImmediateMs = 100
	DefaultAttentionShortMs = 1000
	DefaultAttentionSustainedMs = 10000
	DefaultAttentionLongMs = 60000
	DefaultAttentionScaleCap = 1000

	DefaultFatigueDecayPerTick = 0.01
	DefaultContextDecayFactor = 0.95
	DefaultContextDecayFloor = 0.01
	DefaultMaintenanceTick = time.Second
	DefaultShiftSettleDelay = 100 * time.Millisecond

	DefaultOscillationWindow = 5 * time.Second
	DefaultOscillationThreshold = 0.5
	DefaultSyncTimeout = 2 * time.Second

	DefaultAnalyticsRingCapacity = 1440
	DefaultAnalyticsAnomalySamples = 5
	DefaultAnalyticsTrendInterval = 5 * time.Minute
	DefaultAnalyticsDashboardTTL = 30 * time.Second

	DefaultLogLevel = "info"
	DefaultLogPath = "vsmd.log"
	DefaultLogMaxSizeMB = 100
	DefaultLogMaxBackups = 10
	DefaultLogMaxAgeDays = 7
	DefaultLogCompress = true

	DefaultBrokerURL = "nats://127.0.0.1:4222"
)

// LaneConfig controls one of the Processor's four priority lanes.
type LaneConfig struct {
	Concurrency int
	BatchSize int
	BatchTimeout time.Duration
}

// DefaultLanes returns the four priority lanes' default tuning.
func DefaultLanes() map[string]LaneConfig {
	return map[string]LaneConfig{
		"high_priority": {Concurrency: 4, BatchSize: 100, BatchTimeout: 50 * time.Millisecond},
		"normal_priority": {Concurrency: 8, BatchSize: 100, BatchTimeout: 50 * time.Millisecond},
		"analytics": {Concurrency: 2, BatchSize: 50, BatchTimeout: 100 * time.Millisecond},
		"pattern_matching": {Concurrency: 6, BatchSize: 20, BatchTimeout: 25 * time.Millisecond},
	}
}

// AttentionWeights are the five salience component weights.
type AttentionWeights struct {
	Novelty float64
	Urgency float64
	Relevance float64
	Intensity float64
	Coherence float64
}

// DefaultAttentionWeights returns the default salience-scoring weights.
func DefaultAttentionWeights() AttentionWeights {
	return AttentionWeights{Novelty: 0.30, Urgency: 0.25, Relevance: 0.20, Intensity: 0.15, Coherence: 0.10}
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level string
	Path string
	MaxSizeMB int
	MaxBackups int
	MaxAgeDays int
	Compress bool
}

// CoordinationConfig mirrors CoordinationRules.
type CoordinationConfig struct {
	MaxFrequencyPerFlow float64
	SyncRequiredTypes []string
	BlockPatterns []string
	OscillationWindow time.Duration
	OscillationThreshold float64
	DampeningFactor float64
}

// AnalyticsConfig mirrors the Analytics component's runtime tunables.
type AnalyticsConfig struct {
	RingCapacity int
	AnomalySamples int
	TrendInterval time.Duration
	DashboardTTL time.Duration
}

// BrokerConfig carries the durable transport's connection info.
type BrokerConfig struct {
	URL string
	Subject string
	Durable bool
}

// Config captures every runtime tunable for the core.
type Config struct {
	ProducerBufferCapacity int
	ProducerPollInterval time.Duration

	Lanes map[string]LaneConfig

	PatternWindow time.Duration
	PatternWindowCap int
	PatternHistoryCap int

	AttentionWeights AttentionWeights
	AttentionScaleCap int
	FatigueDecayPerTick float64
	ContextDecayFactor float64
	ContextDecayFloor float64
	MaintenanceTick time.Duration
	ShiftSettleDelay time.Duration

	Coordination CoordinationConfig
	SyncTimeout time.Duration

	Analytics AnalyticsConfig

	Logging LoggingConfig
	Broker BrokerConfig
}

// Load reads configuration from environment variables (prefixed VSM_),
// an optional config file, and sane defaults, returning descriptive errors
// for invalid overrides the way Load accumulated "problems".
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VSM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("vsmd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vsmd")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		ProducerBufferCapacity: v.GetInt("producer.buffer_capacity"),
		ProducerPollInterval: v.GetDuration("producer.poll_interval"),
		Lanes: DefaultLanes(),
		PatternWindow: v.GetDuration("patterns.window"),
		PatternWindowCap: v.GetInt("patterns.window_cap"),
		PatternHistoryCap: v.GetInt("patterns.history_cap"),
		AttentionWeights: AttentionWeights{
			Novelty: v.GetFloat64("attention.weights.novelty"),
			Urgency: v.GetFloat64("attention.weights.urgency"),
			Relevance: v.GetFloat64("attention.weights.relevance"),
			Intensity: v.GetFloat64("attention.weights.intensity"),
			Coherence: v.GetFloat64("attention.weights.coherence"),
		},
		AttentionScaleCap: v.GetInt("attention.scale_cap"),
		FatigueDecayPerTick: v.GetFloat64("attention.fatigue_decay"),
		ContextDecayFactor: v.GetFloat64("attention.context_decay_factor"),
		ContextDecayFloor: v.GetFloat64("attention.context_decay_floor"),
		MaintenanceTick: v.GetDuration("attention.maintenance_tick"),
		ShiftSettleDelay: v.GetDuration("attention.shift_settle_delay"),
		Coordination: CoordinationConfig{
			MaxFrequencyPerFlow: v.GetFloat64("coordination.max_frequency_per_flow"),
			SyncRequiredTypes: v.GetStringSlice("coordination.sync_required_types"),
			BlockPatterns: v.GetStringSlice("coordination.block_patterns"),
			OscillationWindow: v.GetDuration("coordination.oscillation_window"),
			OscillationThreshold: v.GetFloat64("coordination.oscillation_threshold"),
			DampeningFactor: v.GetFloat64("coordination.dampening_factor"),
		},
		SyncTimeout: v.GetDuration("coordination.sync_timeout"),
		Analytics: AnalyticsConfig{
			RingCapacity: v.GetInt("analytics.ring_capacity"),
			AnomalySamples: v.GetInt("analytics.anomaly_samples"),
			TrendInterval: v.GetDuration("analytics.trend_interval"),
			DashboardTTL: v.GetDuration("analytics.dashboard_ttl"),
		},
		Logging: LoggingConfig{
			Level: strings.TrimSpace(v.GetString("logging.level")),
			Path: strings.TrimSpace(v.GetString("logging.path")),
			MaxSizeMB: v.GetInt("logging.max_size_mb"),
			MaxBackups: v.GetInt("logging.max_backups"),
			MaxAgeDays: v.GetInt("logging.max_age_days"),
			Compress: v.GetBool("logging.compress"),
		},
		Broker: BrokerConfig{
			URL: strings.TrimSpace(v.GetString("broker.url")),
			Subject: strings.TrimSpace(v.GetString("broker.subject")),
			Durable: v.GetBool("broker.durable"),
		},
	}

	var problems []string
	if cfg.ProducerBufferCapacity <= 0 {
		problems = append(problems, "producer.buffer_capacity must be positive")
	}
	if cfg.PatternWindowCap <= 0 {
		problems = append(problems, "patterns.window_cap must be positive")
	}
	if cfg.Coordination.DampeningFactor < 0 || cfg.Coordination.DampeningFactor > 1 {
		problems = append(problems, "coordination.dampening_factor must be within [0,1]")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("producer.buffer_capacity", DefaultProducerBufferCapacity)
	v.SetDefault("producer.poll_interval", DefaultProducerPollInterval)

	v.SetDefault("patterns.window", DefaultPatternWindow)
	v.SetDefault("patterns.window_cap", DefaultPatternWindowCap)
	v.SetDefault("patterns.history_cap", DefaultPatternHistoryCap)

	weights := DefaultAttentionWeights()
	v.SetDefault("attention.weights.novelty", weights.Novelty)
	v.SetDefault("attention.weights.urgency", weights.Urgency)
	v.SetDefault("attention.weights.relevance", weights.Relevance)
	v.SetDefault("attention.weights.intensity", weights.Intensity)
	v.SetDefault("attention.weights.coherence", weights.Coherence)
	v.SetDefault("attention.scale_cap", DefaultAttentionScaleCap)
	v.SetDefault("attention.fatigue_decay", DefaultFatigueDecayPerTick)
	v.SetDefault("attention.context_decay_factor", DefaultContextDecayFactor)
	v.SetDefault("attention.context_decay_floor", DefaultContextDecayFloor)
	v.SetDefault("attention.maintenance_tick", DefaultMaintenanceTick)
	v.SetDefault("attention.shift_settle_delay", DefaultShiftSettleDelay)

	v.SetDefault("coordination.max_frequency_per_flow", 10.0)
	v.SetDefault("coordination.sync_required_types", []string{})
	v.SetDefault("coordination.block_patterns", []string{})
	v.SetDefault("coordination.oscillation_window", DefaultOscillationWindow)
	v.SetDefault("coordination.oscillation_threshold", DefaultOscillationThreshold)
	v.SetDefault("coordination.dampening_factor", 0.7)
	v.SetDefault("coordination.sync_timeout", DefaultSyncTimeout)

	v.SetDefault("analytics.ring_capacity", DefaultAnalyticsRingCapacity)
	v.SetDefault("analytics.anomaly_samples", DefaultAnalyticsAnomalySamples)
	v.SetDefault("analytics.trend_interval", DefaultAnalyticsTrendInterval)
	v.SetDefault("analytics.dashboard_ttl", DefaultAnalyticsDashboardTTL)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", DefaultLogPath)
	v.SetDefault("logging.max_size_mb", DefaultLogMaxSizeMB)
	v.SetDefault("logging.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logging.max_age_days", DefaultLogMaxAgeDays)
	v.SetDefault("logging.compress", DefaultLogCompress)

	v.SetDefault("broker.url", DefaultBrokerURL)
	v.SetDefault("broker.subject", "vsm")
	v.SetDefault("broker.durable", false)
}
