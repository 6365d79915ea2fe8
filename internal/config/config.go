package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	CacheNone  = "none"
	CacheLocal = "local"
	CacheRedis = "redis"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// days are evaluated in this location, e.g. future entries check
	Timezone string `toml:"timezone"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// storage
	Storage        string `toml:"storage"`
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// redis, cache & rate limiting
	RedisHost                   string        `toml:"redis_host"`
	RedisPort                   string        `toml:"redis_port"`
	Cache                       string        `toml:"cache"`
	CacheTTL                    time.Duration `toml:"cache_ttl"`
	LocalCacheSizeBytes         int           `toml:"local_cache_size_bytes"`
	WriteRateLimitAllowedPerMin int           `toml:"write_rate_limit_allowed_per_min"`

	AllowedOrigins []string `toml:"allowed_origins"`

	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML config file and returns the config of the given environment.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file [%s]: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env [%s] not found in [%s]", env, path)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config for env [%s]: %w", env, err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5000
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Storage == "" {
		c.Storage = StoragePostgres
	}
	if c.PostgresPort == "" {
		c.PostgresPort = "5432"
	}
	if c.RedisPort == "" {
		c.RedisPort = "6379"
	}
	if c.Cache == "" {
		c.Cache = CacheNone
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 10 * time.Minute
	}
	if c.LocalCacheSizeBytes == 0 {
		c.LocalCacheSizeBytes = 10 * 1024 * 1024
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage: %s", c.Storage)
	}

	switch c.Cache {
	case CacheNone, CacheLocal, CacheRedis:
	default:
		return fmt.Errorf("unknown cache: %s", c.Cache)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone [%s]: %w", c.Timezone, err)
	}
	return loc, nil
}

// RedisRequired tells if any of the configured components needs redis.
func (c *Config) RedisRequired() bool {
	return c.Cache == CacheRedis || c.WriteRateLimitAllowedPerMin > 0
}
