package infra

import (
	"errors"
	"time"
)

// Config holds Redis Sentinel connectivity, pooling and resilience policy
// for a Manager. All fields are fixed at construction.
type Config struct {
	// Sentinels is the list of sentinel endpoints as host:port.
	Sentinels []string `mapstructure:"sentinels"`
	// MasterName is the logical name of the monitored primary.
	MasterName string `mapstructure:"master_name"`
	// Addr is a direct Redis address bypassing Sentinel discovery.
	// Intended for single-node development and tests.
	Addr string `mapstructure:"addr"`

	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`

	// CommandTimeout bounds each backing-store command.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// Pool sizing. MaxWait bounds how long a borrow may block before the
	// pool reports exhaustion.
	MaxTotalConnections int           `mapstructure:"max_total_connections"`
	MaxIdleConnections  int           `mapstructure:"max_idle_connections"`
	MinIdleConnections  int           `mapstructure:"min_idle_connections"`
	MaxWait             time.Duration `mapstructure:"max_wait"`

	// Retry policy: any failure is retried up to RetryAttempts with a fixed
	// RetryWait between attempts.
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryWait     time.Duration `mapstructure:"retry_wait"`

	// Circuit breaker policy. Calls slower than SlowCallThreshold count as
	// failures; the breaker stays open for CircuitOpenDuration and then
	// admits HalfOpenCalls trial calls.
	SlowCallThreshold   time.Duration `mapstructure:"slow_call_threshold"`
	CircuitOpenDuration time.Duration `mapstructure:"circuit_open_duration"`
	HalfOpenCalls       int           `mapstructure:"half_open_calls"`

	// Async worker pool sizing for the non-blocking execution path.
	AsyncWorkers   int `mapstructure:"async_workers"`
	AsyncQueueSize int `mapstructure:"async_queue_size"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		CommandTimeout:      2 * time.Second,
		MaxTotalConnections: 50,
		MaxIdleConnections:  20,
		MinIdleConnections:  5,
		MaxWait:             5 * time.Second,
		RetryAttempts:       3,
		RetryWait:           200 * time.Millisecond,
		SlowCallThreshold:   2 * time.Second,
		CircuitOpenDuration: 30 * time.Second,
		HalfOpenCalls:       3,
		AsyncWorkers:        10,
		AsyncQueueSize:      256,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Sentinels) == 0 && c.Addr == "" {
		return errors.New("either sentinels or addr is required")
	}
	if len(c.Sentinels) > 0 && c.MasterName == "" {
		return errors.New("master_name is required when sentinels are set")
	}
	if c.CommandTimeout < 0 {
		return errors.New("command_timeout must not be negative")
	}
	if c.MaxWait < 0 {
		return errors.New("max_wait must not be negative")
	}
	if c.RetryAttempts <= 0 {
		return errors.New("retry_attempts must be positive")
	}
	if c.RetryWait < 0 {
		return errors.New("retry_wait must not be negative")
	}
	if c.SlowCallThreshold < 0 {
		return errors.New("slow_call_threshold must not be negative")
	}
	if c.CircuitOpenDuration < 0 {
		return errors.New("circuit_open_duration must not be negative")
	}
	if c.MaxTotalConnections <= 0 {
		return errors.New("max_total_connections must be positive")
	}
	return nil
}
