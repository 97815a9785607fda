// Package config loads client configuration for applications embedding
// the CorvusDB client, from a config file and CORVUSDB_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/corvusdb/corvusdb-go/pkg/result"
	"github.com/corvusdb/corvusdb-go/pkg/stream"
)

type Config struct {
	Endpoint      string       `mapstructure:"endpoint" validate:"required"`
	LogLevel      string       `mapstructure:"log_level" validate:"required,uppercase"`
	StreamOptions StreamConfig `mapstructure:"stream"`
	RetryOptions  RetryConfig  `mapstructure:"retry"`
}

type StreamConfig struct {
	// BufferSizeLimitBytes caps the value data buffered per stream in
	// favor of resumability. Zero keeps the library default.
	BufferSizeLimitBytes int64 `mapstructure:"buffer_size_limit_bytes" validate:"min=-1"`
}

type RetryConfig struct {
	MaxAttempts          int     `mapstructure:"max_attempts" validate:"min=1"`
	InitialBackoffMillis int     `mapstructure:"initial_backoff_millis" validate:"min=1"`
	MaxBackoffMillis     int     `mapstructure:"max_backoff_millis" validate:"min=1"`
	BackoffMultiplier    float64 `mapstructure:"backoff_multiplier" validate:"gte=1"`
	JitterFraction       float64 `mapstructure:"jitter_fraction" validate:"gte=0,lt=1"`
}

// Load reads configuration from CORVUSDB_CONFIG_PATH or the default
// search paths, applies environment overrides and validates the
// result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("endpoint", "localhost:50051")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("stream.buffer_size_limit_bytes", 0)
	v.SetDefault("retry.max_attempts", stream.DefaultMaxAttempts)
	v.SetDefault("retry.initial_backoff_millis", int(stream.DefaultInitialBackoff/time.Millisecond))
	v.SetDefault("retry.max_backoff_millis", int(stream.DefaultMaxBackoff/time.Millisecond))
	v.SetDefault("retry.backoff_multiplier", stream.DefaultMultiplier)
	v.SetDefault("retry.jitter_fraction", stream.DefaultJitterFraction)

	v.SetEnvPrefix("CORVUSDB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configFile := os.Getenv("CORVUSDB_CONFIG_PATH")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/corvusdb/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Info("Configuration loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ResultOptions converts the configuration into stream options for
// result.Stream. Streams resume only when the caller marks the
// operation idempotent.
func (c *Config) ResultOptions(idempotent bool) result.Options {
	return result.Options{
		BufferSizeLimit: c.StreamOptions.BufferSizeLimitBytes,
		Retry:           c.RetryOptions.RetryPolicy(),
		Backoff:         c.RetryOptions.BackoffPolicy(),
		Idempotent:      idempotent,
	}
}

// RetryPolicy builds the retry policy described by the configuration.
func (c *RetryConfig) RetryPolicy() stream.RetryPolicy {
	return stream.NewTransientRetryPolicy(c.MaxAttempts)
}

// BackoffPolicy builds the backoff policy described by the
// configuration.
func (c *RetryConfig) BackoffPolicy() stream.BackoffPolicy {
	return &stream.ExponentialBackoff{
		Initial:    time.Duration(c.InitialBackoffMillis) * time.Millisecond,
		Max:        time.Duration(c.MaxBackoffMillis) * time.Millisecond,
		Multiplier: c.BackoffMultiplier,
		Jitter:     c.JitterFraction,
	}
}
