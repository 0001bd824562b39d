package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"pattern-alerts/internal/analysis"
	"pattern-alerts/internal/logging"
	"pattern-alerts/internal/metric"
	"pattern-alerts/internal/pattern"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	State     StateConfig     `mapstructure:"state"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Coinalyze CoinalyzeConfig `mapstructure:"coinalyze"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Instrument  string `mapstructure:"instrument"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// SampleRetention bounds the durable sample mirror; zero disables
	// pruning. It is independent of analysis.retention so exports can look
	// further back than the in-memory store.
	SampleRetention time.Duration `mapstructure:"sample_retention"`
}

// RedisConfig encapsulates Redis connectivity for the redis state backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StateConfig selects where the alert baseline persists between cycles.
type StateConfig struct {
	Backend   string `mapstructure:"backend"`
	FilePath  string `mapstructure:"file_path"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// CoinalyzeConfig covers market-data access.
type CoinalyzeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Symbol         string        `mapstructure:"symbol"`
	Interval       string        `mapstructure:"interval"`
	HistoryHours   int           `mapstructure:"history_hours"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MetricThresholds overrides cells of the built-in threshold table for one
// metric. Nil fields keep the default.
type MetricThresholds struct {
	StableThresholdPct *float64 `mapstructure:"stable_threshold_pct"`
	HighPct            *float64 `mapstructure:"high_pct"`
	MediumPct          *float64 `mapstructure:"medium_pct"`
	NotifyThreshold    *float64 `mapstructure:"notify_threshold"`
	AbsoluteScale      *bool    `mapstructure:"absolute_scale"`
	AbsoluteHigh       *float64 `mapstructure:"absolute_high"`
}

// CrossSignalCondition is one leg of a configured cross-signal rule.
type CrossSignalCondition struct {
	Metric          string        `mapstructure:"metric"`
	Window          time.Duration `mapstructure:"window"`
	Direction       string        `mapstructure:"direction"`
	MinSignificance string        `mapstructure:"min_significance"`
}

// CrossSignalRule is a configured cross-signal rule.
type CrossSignalRule struct {
	Name       string                 `mapstructure:"name"`
	Conditions []CrossSignalCondition `mapstructure:"conditions"`
}

// AnalysisConfig drives the trend analyzer and sample retention.
type AnalysisConfig struct {
	Windows      []time.Duration             `mapstructure:"windows"`
	Retention    time.Duration               `mapstructure:"retention"`
	ClockSkew    time.Duration               `mapstructure:"clock_skew"`
	Metrics      map[string]MetricThresholds `mapstructure:"metrics"`
	CrossSignals []CrossSignalRule           `mapstructure:"cross_signals"`
}

// AlertingConfig defines the notify policy and routing.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	MaxSilence time.Duration  `mapstructure:"max_silence"`
	Channels   []string       `mapstructure:"channels"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PATTERNWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "patternwatcher")
	v.SetDefault("app.instrument", "SOL")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70774C4B))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("coinalyze.base_url", "https://api.coinalyze.net/v1")
	v.SetDefault("coinalyze.symbol", "SOLUSDT_PERP.A")
	v.SetDefault("coinalyze.interval", "1hour")
	v.SetDefault("coinalyze.history_hours", 48)
	v.SetDefault("coinalyze.request_timeout", "15s")
	v.SetDefault("coinalyze.user_agent", "patternwatcher/1.0")

	v.SetDefault("analysis.windows", []string{"1h", "4h", "24h"})
	v.SetDefault("analysis.retention", "48h")
	v.SetDefault("analysis.clock_skew", "2m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.max_silence", "4h")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("state.backend", "file")
	v.SetDefault("state.file_path", "alert_state.json")
	v.SetDefault("state.key_prefix", "patternwatcher:alert_state")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.sample_retention", "720h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.App.Instrument == "" {
		return fmt.Errorf("app.instrument must be set")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if len(c.Analysis.Windows) == 0 {
		return fmt.Errorf("analysis.windows must not be empty")
	}
	for _, w := range c.Analysis.Windows {
		if w <= 0 {
			return fmt.Errorf("analysis.windows entries must be positive")
		}
		if c.Analysis.Retention > 0 && w > c.Analysis.Retention {
			return fmt.Errorf("analysis.retention must cover the largest window (%s)", w)
		}
	}
	for name := range c.Analysis.Metrics {
		if _, err := metric.Parse(name); err != nil {
			return fmt.Errorf("analysis.metrics: %w", err)
		}
	}
	if c.Alerting.MaxSilence <= 0 {
		return fmt.Errorf("alerting.max_silence must be greater than zero")
	}
	switch c.State.Backend {
	case "file":
		if c.State.FilePath == "" {
			return fmt.Errorf("state.file_path required for the file backend")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn required for the postgres state backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr required for the redis state backend")
		}
	default:
		return fmt.Errorf("state.backend must be one of file, postgres, redis")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// ThresholdTable merges configured per-metric overrides over the built-in
// defaults.
func (c *Config) ThresholdTable() metric.Table {
	table := metric.DefaultTable()
	for name, overrides := range c.Analysis.Metrics {
		id, err := metric.Parse(name)
		if err != nil {
			continue
		}
		cfg := table[id]
		if overrides.StableThresholdPct != nil {
			cfg.StableThresholdPct = decimal.NewFromFloat(*overrides.StableThresholdPct)
		}
		if overrides.HighPct != nil {
			cfg.Tiers.High = decimal.NewFromFloat(*overrides.HighPct)
		}
		if overrides.MediumPct != nil {
			cfg.Tiers.Medium = decimal.NewFromFloat(*overrides.MediumPct)
		}
		if overrides.NotifyThreshold != nil {
			cfg.NotifyThreshold = decimal.NewFromFloat(*overrides.NotifyThreshold)
		}
		if overrides.AbsoluteScale != nil {
			cfg.AbsoluteScale = *overrides.AbsoluteScale
		}
		if overrides.AbsoluteHigh != nil {
			cfg.AbsoluteHigh = decimal.NewFromFloat(*overrides.AbsoluteHigh)
		}
		table[id] = cfg
	}
	return table
}

// CrossSignalRules converts configured rules, falling back to the built-in
// set when none are configured.
func (c *Config) CrossSignalRules() []pattern.Rule {
	if len(c.Analysis.CrossSignals) == 0 {
		return pattern.DefaultRules()
	}
	rules := make([]pattern.Rule, 0, len(c.Analysis.CrossSignals))
	for _, rc := range c.Analysis.CrossSignals {
		rule := pattern.Rule{Name: rc.Name}
		for _, cc := range rc.Conditions {
			id, err := metric.Parse(cc.Metric)
			if err != nil {
				continue
			}
			rule.Conditions = append(rule.Conditions, pattern.Condition{
				Metric:          id,
				Window:          cc.Window,
				Direction:       analysis.Direction(cc.Direction),
				MinSignificance: analysis.Significance(cc.MinSignificance),
			})
		}
		if rule.Name != "" && len(rule.Conditions) > 0 {
			rules = append(rules, rule)
		}
	}
	return rules
}

// HistoryWindow returns how much history each cycle fetches.
func (c *Config) HistoryWindow() time.Duration {
	if c.Coinalyze.HistoryHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(c.Coinalyze.HistoryHours) * time.Hour
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
