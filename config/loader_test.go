package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Purpose-Dev/DCounter/core"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  sentinels:
    - "sentinel-1:26379"
    - "sentinel-2:26379"
  master_name: "counters"
  password: "secret"
  tls_enabled: true
  command_timeout: 3s
  retry_attempts: 5
  retry_wait: 100ms
counter:
  node_id: "node-a"
  consistency: "eventually_consistent"
  marker_ttl: 12h
rollup:
  interval: 15s
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"sentinel-1:26379", "sentinel-2:26379"}, cfg.Redis.Sentinels)
	assert.Equal(t, "counters", cfg.Redis.MasterName)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.True(t, cfg.Redis.TLSEnabled)
	assert.Equal(t, 3*time.Second, cfg.Redis.CommandTimeout)
	assert.Equal(t, 5, cfg.Redis.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Redis.RetryWait)

	assert.Equal(t, "node-a", cfg.Counter.NodeID)
	assert.Equal(t, 12*time.Hour, cfg.Counter.MarkerTTL)
	assert.Equal(t, 15*time.Second, cfg.Rollup.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)

	consistency, err := cfg.ParsedConsistency()
	require.NoError(t, err)
	assert.Equal(t, core.EventuallyConsistent, consistency)

	// Unset fields keep their defaults.
	assert.Equal(t, 50, cfg.Redis.MaxTotalConnections)
	assert.Equal(t, 30*time.Second, cfg.Redis.CircuitOpenDuration)
}

func TestLoad_MissingFileUsesDefaultsAndEnvironment(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, core.BestEffort.String(), cfg.Counter.Consistency)
	assert.Equal(t, 24*time.Hour, cfg.Counter.MarkerTTL)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: "file-host:6379"
counter:
  consistency: "best_effort"
`)

	t.Setenv("REDIS_SENTINELS", "s1:26379,s2:26379")
	t.Setenv("REDIS_MASTER_NAME", "primary")
	t.Setenv("DCOUNTER_NODE_ID", "env-node")
	t.Setenv("DCOUNTER_CONSISTENCY", "accurate")
	t.Setenv("DCOUNTER_ROLLUP_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"s1:26379", "s2:26379"}, cfg.Redis.Sentinels)
	assert.Equal(t, "primary", cfg.Redis.MasterName)
	assert.Equal(t, "env-node", cfg.Counter.NodeID)
	assert.Equal(t, "accurate", cfg.Counter.Consistency)
	assert.Equal(t, 45*time.Second, cfg.Rollup.Interval)
}

func TestLoad_RejectsInvalidConsistency(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: "localhost:6379"
counter:
  consistency: "linearizable"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RequiresNodeIDForStatefulStrategies(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  addr: "localhost:6379"
counter:
  consistency: "accurate"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RequiresConnectionDetails(t *testing.T) {
	path := writeConfigFile(t, `
counter:
  consistency: "best_effort"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsNegativeDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.CommandTimeout = -time.Second

	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Redis.Addr = "localhost:6379"
	cfg.Counter.MarkerTTL = -time.Hour
	assert.Error(t, cfg.Validate())
}
