// Package config loads sharkcalc settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/sharkcalc/internal/auth"
	"github.com/szaher/sharkcalc/internal/calc"
)

// Environment variables that override file settings.
const (
	EnvLogLevel         = "SHARKCALC_LOG_LEVEL"
	EnvAddr             = "SHARKCALC_ADDR"
	EnvRateLimit        = "SHARKCALC_RATE_LIMIT"
	EnvPrecision        = "SHARKCALC_PRECISION"
	EnvTimeout          = "SHARKCALC_TIMEOUT"
	EnvMaxComplexity    = "SHARKCALC_MAX_COMPLEXITY"
	EnvBatchConcurrency = "SHARKCALC_BATCH_CONCURRENCY"
)

// Config is the complete service configuration.
type Config struct {
	LogLevel string         `yaml:"log_level" json:"log_level"`
	Defaults DefaultsConfig `yaml:"defaults" json:"defaults"`
	Limits   calc.Limits    `yaml:"limits" json:"limits"`
	Batch    BatchConfig    `yaml:"batch" json:"batch"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// DefaultsConfig holds the per-request values used when a caller omits them.
type DefaultsConfig struct {
	Precision     int           `yaml:"precision" json:"precision"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	MaxComplexity float64       `yaml:"max_complexity" json:"max_complexity"`
}

// BatchConfig bounds batch evaluation.
type BatchConfig struct {
	MaxItems    int `yaml:"max_items" json:"max_items"`
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// ServerConfig holds HTTP server settings. The API key is never read from
// the file; it comes from SHARKCALC_API_KEY only.
type ServerConfig struct {
	Addr            string               `yaml:"addr" json:"addr"`
	APIKey          string               `yaml:"-" json:"-"`
	RateLimit       auth.RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	ShutdownTimeout time.Duration        `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBodyBytes    int64                `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Defaults: DefaultsConfig{
			Precision:     calc.DefaultPrecision,
			Timeout:       calc.DefaultTimeout,
			MaxComplexity: calc.DefaultMaxComplexity,
		},
		Limits: calc.DefaultLimits(),
		Batch: BatchConfig{
			MaxItems:    100,
			Concurrency: 8,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       auth.DefaultRateLimitConfig(),
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(auth.DefaultEnvVar); ok {
		c.Server.APIKey = v
	}
	if v, ok := lookup(EnvRateLimit); ok {
		c.Server.RateLimit = auth.ParseRateLimit(v, c.Server.RateLimit)
	}
	if v, ok := lookup(EnvPrecision); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPrecision, err)
		}
		c.Defaults.Precision = n
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Defaults.Timeout = d
	}
	if v, ok := lookup(EnvMaxComplexity); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxComplexity, err)
		}
		c.Defaults.MaxComplexity = f
	}
	if v, ok := lookup(EnvBatchConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBatchConcurrency, err)
		}
		c.Batch.Concurrency = n
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Defaults.Precision < 0 {
		errs = append(errs, fmt.Errorf("defaults.precision must be >= 0, got %d", c.Defaults.Precision))
	}
	if c.Defaults.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("defaults.timeout must be positive, got %s", c.Defaults.Timeout))
	}
	if c.Defaults.MaxComplexity <= 0 {
		errs = append(errs, fmt.Errorf("defaults.max_complexity must be positive, got %v", c.Defaults.MaxComplexity))
	}
	if c.Limits.MaxLength <= 0 || c.Limits.MaxDepth <= 0 || c.Limits.MaxCalls <= 0 {
		errs = append(errs, fmt.Errorf("limits must be positive, got %+v", c.Limits))
	}
	if c.Batch.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("batch.max_items must be positive, got %d", c.Batch.MaxItems))
	}
	if c.Batch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency must be positive, got %d", c.Batch.Concurrency))
	}
	if c.Server.RateLimit.RequestsPerSecond <= 0 || c.Server.RateLimit.Burst <= 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit must be positive, got %+v", c.Server.RateLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Request builds a calc.Request for expr using the configured defaults.
func (c *Config) Request(expr string) calc.Request {
	return calc.NewRequest(expr).
		WithPrecision(c.Defaults.Precision).
		WithTimeout(c.Defaults.Timeout).
		WithMaxComplexity(c.Defaults.MaxComplexity)
}
