// Package config loads service configuration from COINRATE_* environment
// variables and an optional coinrate.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "COINRATE"

// Config holds all configuration for the coinrate service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// RedisConfig configures the shared Redis instance.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// UpstreamConfig configures the market-data API client.
type UpstreamConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CreditBudget int           `mapstructure:"credit_budget"`
	CreditWindow time.Duration `mapstructure:"credit_window"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	Burst        int           `mapstructure:"burst"`
}

// CacheConfig configures the single-flight cache.
type CacheConfig struct {
	// BusyTTL is the busy marker lifetime and the upstream fetch deadline.
	BusyTTL        time.Duration `mapstructure:"busy_ttl"`
	StaleRetention time.Duration `mapstructure:"stale_retention"`
}

// BatchConfig configures list quote fetching.
type BatchConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// New returns a viper instance with defaults, environment binding and the
// optional config file search path. Callers may bind flags before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("upstream.base_url", "https://pro-api.coinmarketcap.com")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", 4*time.Second)
	v.SetDefault("upstream.credit_budget", 30)
	v.SetDefault("upstream.credit_window", time.Minute)
	v.SetDefault("upstream.rate_limit", 5.0)
	v.SetDefault("upstream.burst", 5)

	v.SetDefault("cache.busy_ttl", 5*time.Second)
	v.SetDefault("cache.stale_retention", 24*time.Hour)

	v.SetDefault("batch.chunk_size", 100)
	v.SetDefault("batch.max_concurrency", 4)
	v.SetDefault("batch.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("coinrate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.coinrate")

	return v
}

// Load reads the optional config file, unmarshals v and validates the result.
// Environment variables take precedence over the file.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Upstream.APIKey == "" {
		problems = append(problems, "upstream.api_key is required (COINRATE_UPSTREAM_API_KEY)")
	}
	if c.Upstream.Timeout <= 0 {
		problems = append(problems, "upstream.timeout must be > 0")
	}
	if c.Cache.BusyTTL < c.Upstream.Timeout {
		// The holder's fetch deadline is BusyTTL; a shorter marker would
		// let a second process start fetching while the first still runs.
		problems = append(problems, fmt.Sprintf("cache.busy_ttl (%v) must be >= upstream.timeout (%v)", c.Cache.BusyTTL, c.Upstream.Timeout))
	}
	if c.Cache.StaleRetention < 0 {
		problems = append(problems, "cache.stale_retention must be >= 0")
	}
	if c.Upstream.CreditBudget <= 0 || c.Upstream.CreditWindow <= 0 {
		problems = append(problems, "upstream.credit_budget and upstream.credit_window must be > 0")
	}
	if c.Batch.ChunkSize <= 0 || c.Batch.MaxConcurrency <= 0 {
		problems = append(problems, "batch.chunk_size and batch.max_concurrency must be > 0")
	}
	if c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
