package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"whalefeed/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ServerConfig tunes the HTTP feed server.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// FeedConfig bounds feed pagination behaviour.
type FeedConfig struct {
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	OpportunityTTL  time.Duration `mapstructure:"opportunity_ttl"`
}

// IngestConfig governs the signal ingestion pipeline.
type IngestConfig struct {
	Chains           []string       `mapstructure:"chains"`
	PrimaryProvider  string         `mapstructure:"primary_provider"`
	FallbackProvider string         `mapstructure:"fallback_provider"`
	Alchemy          ProviderConfig `mapstructure:"alchemy"`
	Moralis          ProviderConfig `mapstructure:"moralis"`
	RPC              RPCConfig      `mapstructure:"rpc"`
	StreamLag        time.Duration  `mapstructure:"stream_lag"`
	BackfillWindow   time.Duration  `mapstructure:"backfill_window"`
	Retry            RetryConfig    `mapstructure:"retry"`
	RateLimitPerSec  int            `mapstructure:"rate_limit_per_sec"`
	FlushSize        int            `mapstructure:"flush_size"`
	AdvisoryLockKey  int64          `mapstructure:"advisory_lock_key"`
}

// ProviderConfig covers an HTTP/WS data provider.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	WSURL          string        `mapstructure:"ws_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RPCConfig covers direct on-chain log access.
type RPCConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Tokens         []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig describes an ERC-20 token watched by the RPC provider.
type TokenConfig struct {
	Address  string  `mapstructure:"address"`
	Symbol   string  `mapstructure:"symbol"`
	Decimals int32   `mapstructure:"decimals"`
	USDPrice float64 `mapstructure:"usd_price"`
}

// RetryConfig shapes the jittered exponential backoff applied to stream
// failures before failing over to the fallback provider.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// SchedulerConfig governs the periodic backfill cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WHALEFEED")
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
	v.SetDefault("app.name", "whalefeed")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("feed.default_page_size", 20)
	v.SetDefault("feed.max_page_size", 100)
	v.SetDefault("feed.opportunity_ttl", "24h")

	v.SetDefault("ingest.chains", []string{"ethereum"})
	v.SetDefault("ingest.primary_provider", "alchemy")
	v.SetDefault("ingest.fallback_provider", "moralis")
	v.SetDefault("ingest.alchemy.base_url", "https://api.g.alchemy.com")
	v.SetDefault("ingest.alchemy.ws_url", "wss://api.g.alchemy.com/ws")
	v.SetDefault("ingest.alchemy.request_timeout", "10s")
	v.SetDefault("ingest.moralis.base_url", "https://deep-index.moralis.io/api/v2.2")
	v.SetDefault("ingest.moralis.request_timeout", "10s")
	v.SetDefault("ingest.rpc.request_timeout", "10s")
	v.SetDefault("ingest.stream_lag", "15s")
	v.SetDefault("ingest.backfill_window", "24h")
	v.SetDefault("ingest.retry.max_attempts", 8)
	v.SetDefault("ingest.retry.base_delay", "500ms")
	v.SetDefault("ingest.retry.max_delay", "15s")
	v.SetDefault("ingest.rate_limit_per_sec", 10)
	v.SetDefault("ingest.flush_size", 64)
	v.SetDefault("ingest.advisory_lock_key", int64(0x7768616c))

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Feed.DefaultPageSize <= 0 {
		return fmt.Errorf("feed.default_page_size must be greater than zero")
	}
	if c.Feed.MaxPageSize < c.Feed.DefaultPageSize {
		return fmt.Errorf("feed.max_page_size must be at least feed.default_page_size")
	}
	if c.Feed.OpportunityTTL <= 0 {
		return fmt.Errorf("feed.opportunity_ttl must be greater than zero")
	}
	if len(c.Ingest.Chains) == 0 {
		return fmt.Errorf("ingest.chains must not be empty")
	}
	switch c.Ingest.PrimaryProvider {
	case "alchemy", "moralis":
	default:
		return fmt.Errorf("ingest.primary_provider must be alchemy or moralis")
	}
	switch c.Ingest.FallbackProvider {
	case "alchemy", "moralis", "rpc":
	default:
		return fmt.Errorf("ingest.fallback_provider must be alchemy, moralis, or rpc")
	}
	if c.Ingest.FallbackProvider == c.Ingest.PrimaryProvider {
		return fmt.Errorf("ingest.fallback_provider must differ from ingest.primary_provider")
	}
	if c.Ingest.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("ingest.retry.max_attempts must be greater than zero")
	}
	if c.Ingest.RateLimitPerSec <= 0 {
		return fmt.Errorf("ingest.rate_limit_per_sec must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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

// ClampPageSize bounds a requested page size to the configured limits,
// substituting the default when the request carries none.
func (c *Config) ClampPageSize(requested int) int {
	if requested <= 0 {
		return c.Feed.DefaultPageSize
	}
	if requested > c.Feed.MaxPageSize {
		return c.Feed.MaxPageSize
	}
	return requested
}
