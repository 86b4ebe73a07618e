// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage providers.
const (
	ProviderPostgres = "postgres"
	ProviderSQLite   = "sqlite"
	ProviderMemory   = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs pagination and batching.
type CrawlerConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	SearchURL     string `mapstructure:"search_url"`
	StartPage     int    `mapstructure:"start_page"`
	MaxPages      int    `mapstructure:"max_pages"`
	BatchSize     int    `mapstructure:"batch_size"`
	UserAgent     string `mapstructure:"user_agent"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// HTTPConfig configures the transport.
type HTTPConfig struct {
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	MaxConnsPerHost int `mapstructure:"max_conns_per_host"`
}

// RetryConfig configures the fixed-interval retry policy.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Interval   time.Duration `mapstructure:"interval"`
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig controls access to Postgres.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SQLiteConfig points at the SQLite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig selects the logger flavor and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load reads configuration from defaults, an optional file and CRAWLER_*
// environment variables, in increasing order of precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.base_url", "https://gowork.de")
	v.SetDefault("crawler.search_url", "https://gowork.de/search")
	v.SetDefault("crawler.start_page", 1)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.batch_size", 100)
	v.SetDefault("crawler.user_agent", "directory-crawler/0.1")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_conns_per_host", 0)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.interval", "60s")
	v.SetDefault("storage.provider", ProviderSQLite)
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "companies")
	v.SetDefault("storage.postgres.max_conns", 0)
	v.SetDefault("storage.sqlite.path", "data/companies.db")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate ensures the configuration is internally consistent.
func (c Config) Validate() error {
	if err := validateAbsURL("crawler.base_url", c.Crawler.BaseURL); err != nil {
		return err
	}
	if err := validateAbsURL("crawler.search_url", c.Crawler.SearchURL); err != nil {
		return err
	}
	if c.Crawler.StartPage < 1 {
		return fmt.Errorf("crawler.start_page must be >= 1")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.Interval < 0 {
		return fmt.Errorf("retry.interval must be >= 0")
	}
	switch c.Storage.Provider {
	case ProviderPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set when storage.provider is postgres")
		}
	case ProviderSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path must be set when storage.provider is sqlite")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// RequestTimeout returns the per-request transport timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func validateAbsURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
