package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from a YAML file and environment variables.
// The file is optional; defaults and environment overrides apply either
// way, and the result is validated before it is returned.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		// Config file is optional when environment variables are set.
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides; these
// take precedence over the file contents.
func applyEnvironmentOverrides(cfg *Config) {
	if sentinels := os.Getenv("REDIS_SENTINELS"); sentinels != "" {
		cfg.Redis.Sentinels = strings.Split(sentinels, ",")
	}
	if masterName := os.Getenv("REDIS_MASTER_NAME"); masterName != "" {
		cfg.Redis.MasterName = masterName
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if nodeID := os.Getenv("DCOUNTER_NODE_ID"); nodeID != "" {
		cfg.Counter.NodeID = nodeID
	}
	if consistency := os.Getenv("DCOUNTER_CONSISTENCY"); consistency != "" {
		cfg.Counter.Consistency = consistency
	}
	if markerTTL := os.Getenv("DCOUNTER_MARKER_TTL"); markerTTL != "" {
		if d, err := time.ParseDuration(markerTTL); err == nil {
			cfg.Counter.MarkerTTL = d
		}
	}

	if interval := os.Getenv("DCOUNTER_ROLLUP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Rollup.Interval = d
		}
	}

	if level := os.Getenv("DCOUNTER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
