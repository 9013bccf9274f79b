package config

import (
	"errors"
	"time"

	"github.com/Purpose-Dev/DCounter/core"
	"github.com/Purpose-Dev/DCounter/infra"
)

// Config represents the library configuration: backing-store connectivity,
// counter behavior, rollup scheduling and logging.
type Config struct {
	Redis   infra.Config  `mapstructure:"redis"`
	Counter CounterConfig `mapstructure:"counter"`
	Rollup  RollupConfig  `mapstructure:"rollup"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CounterConfig represents counter construction settings.
type CounterConfig struct {
	// NodeID identifies this process's deltas. Required for the eventually
	// consistent and accurate strategies.
	NodeID string `mapstructure:"node_id"`
	// Consistency is one of best_effort, eventually_consistent, accurate.
	Consistency string `mapstructure:"consistency"`
	// MarkerTTL bounds idempotency marker lifetime.
	MarkerTTL time.Duration `mapstructure:"marker_ttl"`
}

// RollupConfig represents the rollup scheduler settings.
type RollupConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Redis: *infra.DefaultConfig(),
		Counter: CounterConfig{
			Consistency: core.BestEffort.String(),
			MarkerTTL:   24 * time.Hour,
		},
		Rollup: RollupConfig{
			Interval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}

	consistency, err := core.ParseConsistency(c.Counter.Consistency)
	if err != nil {
		return err
	}
	if consistency != core.BestEffort && c.Counter.NodeID == "" {
		return errors.New("counter.node_id is required for eventually consistent and accurate counters")
	}
	if c.Counter.MarkerTTL < 0 {
		return errors.New("counter.marker_ttl must not be negative")
	}
	if c.Rollup.Interval <= 0 {
		return errors.New("rollup.interval must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

// ParsedConsistency returns the configured consistency level.
func (c *Config) ParsedConsistency() (core.Consistency, error) {
	return core.ParseConsistency(c.Counter.Consistency)
}
