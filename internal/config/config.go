// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RedisConfig describes how to reach the frontier's coordination store.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port form consumed by the go-redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Config is the validated, immutable configuration for one crawler process.
type Config struct {
	StartURL        string        `mapstructure:"start_url"`
	Concurrency     int           `mapstructure:"concurrency"`
	TimeoutMs       int           `mapstructure:"timeout_ms"`
	MaxDepth        int           `mapstructure:"max_depth"`
	BackoffBaseMs   int           `mapstructure:"backoff_base_ms"`
	BackoffMaxMs    int           `mapstructure:"backoff_max_ms"`
	BackoffJitterMs int           `mapstructure:"backoff_jitter_ms"`
	BackoffRetries  int           `mapstructure:"backoff_retries"`
	RobotsTimeoutMs int           `mapstructure:"robots_timeout_ms"`
	UserAgent       string        `mapstructure:"user_agent"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DrainTimeout    time.Duration `mapstructure:"drain_timeout"`

	QueueKey       string `mapstructure:"queue_key"`
	VisitedSetKey  string `mapstructure:"visited_set_key"`
	BRPOPTimeoutS  int    `mapstructure:"brpop_timeout_seconds"`
	Redis          RedisConfig `mapstructure:"redis"`

	OutputFormat string `mapstructure:"output_format"` // "stdout" or "jsonl"
	MetricsAddr  string `mapstructure:"metrics_addr"`  // empty disables the HTTP surface
	Development  bool   `mapstructure:"development"`
}

// FetchTimeout is the per-page fetch timeout as a time.Duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RobotsTimeout is the per-host robots.txt fetch timeout as a time.Duration.
func (c Config) RobotsTimeout() time.Duration {
	return time.Duration(c.RobotsTimeoutMs) * time.Millisecond
}

// BRPOPTimeout is the blocking-pop timeout as a time.Duration.
func (c Config) BRPOPTimeout() time.Duration {
	return time.Duration(c.BRPOPTimeoutS) * time.Second
}

const defaultConfigFile = "crawler-config.yaml"

// Load reads configuration from a YAML file plus environment overrides.
// An empty path falls back to the well-known default file name in the
// working directory. A missing or malformed file is a fatal error —
// there is no "proceed with defaults" path once a file is named
// (explicitly or by default) and can't be read.
func Load(path string) (Config, error) {
	v := newViper()
	if path == "" {
		path = defaultConfigFile
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return unmarshalAndValidate(v)
}

// Option mutates a Config built programmatically via New.
type Option func(*Config)

// New builds a Config programmatically, applying the same defaults and
// environment overrides Load does, then Options, then validation. This is
// the construction path used by tests and library embedders.
func New(opts ...Option) (Config, error) {
	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithStartURL sets the seed URL.
func WithStartURL(u string) Option { return func(c *Config) { c.StartURL = u } }

// WithConcurrency sets the worker count.
func WithConcurrency(n int) Option { return func(c *Config) { c.Concurrency = n } }

// WithRedis sets the coordination-store endpoint.
func WithRedis(host string, port int) Option {
	return func(c *Config) { c.Redis = RedisConfig{Host: host, Port: port} }
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// REDIS_HOST/REDIS_PORT and the MDC_* overrides take precedence over
	// whatever the YAML file supplied.
	_ = v.BindEnv("redis.host", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "REDIS_PORT")
	_ = v.BindEnv("queue_key", "MDC_QUEUE_KEY")
	_ = v.BindEnv("visited_set_key", "MDC_VISITED_SET_KEY")
	_ = v.BindEnv("brpop_timeout_seconds", "MDC_BRPOP_TIMEOUT")

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 4)
	v.SetDefault("timeout_ms", 5000)
	v.SetDefault("max_depth", 3)
	v.SetDefault("backoff_base_ms", 1000)
	v.SetDefault("backoff_max_ms", 10000)
	v.SetDefault("backoff_jitter_ms", 500)
	v.SetDefault("backoff_retries", 4)
	v.SetDefault("robots_timeout_ms", 5000)
	v.SetDefault("user_agent", "monzo-crawler")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("drain_timeout", 2*time.Second)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("queue_key", "frontier:queue")
	v.SetDefault("visited_set_key", "frontier:visited")
	v.SetDefault("brpop_timeout_seconds", 5)

	v.SetDefault("output_format", "stdout")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("development", false)
}

func unmarshalAndValidate(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the configuration's field constraints.
func (c Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start_url must not be empty")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1")
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be > 0")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be > 0")
	}
	if c.BackoffBaseMs <= 0 {
		return fmt.Errorf("backoff_base_ms must be > 0")
	}
	if c.BackoffMaxMs <= 0 {
		return fmt.Errorf("backoff_max_ms must be > 0")
	}
	if c.BackoffBaseMs > c.BackoffMaxMs {
		return fmt.Errorf("backoff_base_ms must be <= backoff_max_ms")
	}
	if c.BackoffJitterMs < 0 {
		return fmt.Errorf("backoff_jitter_ms must be >= 0")
	}
	if c.BackoffRetries < 1 {
		return fmt.Errorf("backoff_retries must be >= 1")
	}
	if c.RobotsTimeoutMs <= 0 {
		return fmt.Errorf("robots_timeout_ms must be > 0")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis.host must not be empty")
	}
	if c.QueueKey == "" {
		return fmt.Errorf("queue_key must not be empty")
	}
	if c.VisitedSetKey == "" {
		return fmt.Errorf("visited_set_key must not be empty")
	}
	if c.BRPOPTimeoutS <= 0 {
		return fmt.Errorf("brpop_timeout_seconds must be > 0")
	}
	switch c.OutputFormat {
	case "stdout", "jsonl":
	default:
		return fmt.Errorf("output_format must be %q or %q, got %q", "stdout", "jsonl", c.OutputFormat)
	}
	return nil
}
