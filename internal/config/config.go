package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Seed       SeedConfig       `yaml:"seed" mapstructure:"seed"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// CacheConfig configures per-tier TTLs and audit retention.
type CacheConfig struct {
	JurisdictionTTLDays int `yaml:"jurisdiction_ttl_days" mapstructure:"jurisdiction_ttl_days"`
	EntityTTLDays       int `yaml:"entity_ttl_days" mapstructure:"entity_ttl_days"`
	AuditRetentionDays  int `yaml:"audit_retention_days" mapstructure:"audit_retention_days"`
}

// JurisdictionTTL returns the Tier 1 TTL as a duration.
func (c CacheConfig) JurisdictionTTL() time.Duration {
	return time.Duration(c.JurisdictionTTLDays) * 24 * time.Hour
}

// EntityTTL returns the Tier 2 TTL as a duration.
func (c CacheConfig) EntityTTL() time.Duration {
	return time.Duration(c.EntityTTLDays) * 24 * time.Hour
}

// FetchConfig configures the live-fetch path taken on a cache miss.
type FetchConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// Timeout returns the fetch timeout as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// FirecrawlConfig holds Firecrawl API settings (fallback fetcher).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings for the Claude extractor.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds the Notion QA review database settings.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// SeedConfig configures jurisdiction roster imports.
type SeedConfig struct {
	RosterURL string `yaml:"roster_url" mapstructure:"roster_url"`
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SkipRows  int    `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// RefreshConfig configures the Temporal re-scrape worker.
type RefreshConfig struct {
	HostPort      string `yaml:"host_port" mapstructure:"host_port"`
	Namespace     string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue     string `yaml:"task_queue" mapstructure:"task_queue"`
	IntervalHours int    `yaml:"interval_hours" mapstructure:"interval_hours"`
	HorizonDays   int    `yaml:"horizon_days" mapstructure:"horizon_days"`
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// MonitoringConfig configures budget alerting thresholds.
type MonitoringConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CostThresholdUSD  float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	HitRateFloorPct   float64 `yaml:"hit_rate_floor_pct" mapstructure:"hit_rate_floor_pct"`
	RatesPath         string  `yaml:"rates_path" mapstructure:"rates_path"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackHours     int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZONING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "zoning.db")
	v.SetDefault("cache.jurisdiction_ttl_days", 30)
	v.SetDefault("cache.entity_ttl_days", 90)
	v.SetDefault("cache.audit_retention_days", 365)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.user_agent", "zoning-cli/1.0")
	v.SetDefault("fetch.rate_per_second", 2.0)
	v.SetDefault("fetch.rate_burst", 4)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("seed.temp_dir", "/tmp/zoning-seed")
	v.SetDefault("seed.skip_rows", 0)
	v.SetDefault("refresh.host_port", "localhost:7233")
	v.SetDefault("refresh.namespace", "default")
	v.SetDefault("refresh.task_queue", "zoning-refresh")
	v.SetDefault("refresh.interval_hours", 24)
	v.SetDefault("refresh.horizon_days", 3)
	v.SetDefault("refresh.batch_size", 25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.hit_rate_floor_pct", 60.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
