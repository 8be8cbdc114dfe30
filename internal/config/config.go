package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"skywatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	SWPC      SWPCConfig      `mapstructure:"swpc"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the refresh sweep cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// TrackingConfig tunes the tracking modules.
type TrackingConfig struct {
	SolarInterval    time.Duration `mapstructure:"solar_interval"`
	LunarInterval    time.Duration `mapstructure:"lunar_interval"`
	TransitInterval  time.Duration `mapstructure:"transit_interval"`
	ReferenceModule  string        `mapstructure:"reference_module"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
	BatchSize        int           `mapstructure:"batch_size"`
	Users            []string      `mapstructure:"users"`
	Transit          TransitConfig `mapstructure:"transit"`
	Lunar            LunarConfig   `mapstructure:"lunar"`
}

// TransitConfig holds transit-branch switches.
type TransitConfig struct {
	EmitExactEvents bool `mapstructure:"emit_exact_events"`
}

// LunarConfig holds the void-of-course heuristic parameters.
type LunarConfig struct {
	VoidDegreeThreshold float64       `mapstructure:"void_degree_threshold"`
	VoidLookahead       time.Duration `mapstructure:"void_lookahead"`
}

// SWPCConfig covers the NOAA Space Weather Prediction Center feeds.
type SWPCConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	FlareWindow    time.Duration `mapstructure:"flare_window"`
}

// SynthesisConfig governs the trigger orchestrator.
type SynthesisConfig struct {
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	RecordTTL    time.Duration `mapstructure:"record_ttl"`
	LocalTimeout time.Duration `mapstructure:"local_timeout"`
}

// QueueConfig selects the background job queue. No brokers means no queue.
type QueueConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// AlertingConfig defines where synthesis completions are announced.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig configures the Prometheus endpoint served by `run`.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ScannerConfig sets forward-scan defaults.
type ScannerConfig struct {
	DefaultDays int `mapstructure:"default_days"`
	MaxDays     int `mapstructure:"max_days"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from an optional .env file, config file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SKYWATCH")
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

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "skywatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x736b7977))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("tracking.solar_interval", "15m")
	v.SetDefault("tracking.lunar_interval", "1h")
	v.SetDefault("tracking.transit_interval", "6h")
	v.SetDefault("tracking.reference_module", "western")
	v.SetDefault("tracking.history_retention", "2160h")
	v.SetDefault("tracking.batch_size", 10)
	v.SetDefault("tracking.transit.emit_exact_events", false)
	v.SetDefault("tracking.lunar.void_degree_threshold", 25.0)
	v.SetDefault("tracking.lunar.void_lookahead", "72h")

	v.SetDefault("swpc.base_url", "https://services.swpc.noaa.gov")
	v.SetDefault("swpc.request_timeout", "10s")
	v.SetDefault("swpc.flare_window", "24h")

	v.SetDefault("synthesis.stale_after", "24h")
	v.SetDefault("synthesis.record_ttl", "168h")
	v.SetDefault("synthesis.local_timeout", "2m")

	v.SetDefault("queue.topic", "skywatch-synthesis")
	v.SetDefault("queue.group_id", "skywatch-synthesis-worker")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("scanner.default_days", 7)
	v.SetDefault("scanner.max_days", 365)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Tracking.SolarInterval <= 0 || c.Tracking.LunarInterval <= 0 || c.Tracking.TransitInterval <= 0 {
		return fmt.Errorf("tracking intervals must be greater than zero")
	}
	if c.Tracking.BatchSize <= 0 {
		return fmt.Errorf("tracking.batch_size must be greater than zero")
	}
	if c.Tracking.HistoryRetention <= 0 {
		return fmt.Errorf("tracking.history_retention must be greater than zero")
	}
	if c.Tracking.ReferenceModule == "" {
		return fmt.Errorf("tracking.reference_module must be set")
	}
	if c.Tracking.Lunar.VoidDegreeThreshold < 0 || c.Tracking.Lunar.VoidDegreeThreshold >= 30 {
		return fmt.Errorf("tracking.lunar.void_degree_threshold must be within [0, 30)")
	}
	if c.Synthesis.StaleAfter <= 0 || c.Synthesis.RecordTTL < c.Synthesis.StaleAfter {
		return fmt.Errorf("synthesis.record_ttl must be at least synthesis.stale_after, both positive")
	}
	if c.Scanner.DefaultDays <= 0 || c.Scanner.MaxDays < c.Scanner.DefaultDays {
		return fmt.Errorf("scanner.max_days must be at least scanner.default_days, both positive")
	}
	if len(c.Queue.Brokers) > 0 && c.Queue.Topic == "" {
		return fmt.Errorf("queue.topic must be set when queue.brokers is configured")
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

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ResolveDays clamps a requested scan window to the configured bounds.
func (c *Config) ResolveDays(requested int) int {
	if requested <= 0 {
		return c.Scanner.DefaultDays
	}
	if requested > c.Scanner.MaxDays {
		return c.Scanner.MaxDays
	}
	return requested
}
