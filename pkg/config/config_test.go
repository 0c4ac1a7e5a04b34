package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setWorkerCreds(t *testing.T) {
	t.Helper()
	t.Setenv("API_ID", "12345")
	t.Setenv("API_HASH", "abcdef")
}

func TestLoadWorkerConfig_Defaults(t *testing.T) {
	setWorkerCreds(t)

	cfg, err := LoadWorkerConfig()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.WorkerID, "worker id is generated when unset")
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, "ws://localhost:8800/session", cfg.BridgeURL)
	assert.Equal(t, 12345, cfg.APIID)
	assert.Equal(t, 20, cfg.Fleet.MaxActive)
	assert.Equal(t, 5*time.Second, cfg.Fleet.PollInterval)
	assert.Equal(t, 8*time.Second, cfg.Fleet.IdleSleep)
	assert.Equal(t, 15*time.Second, cfg.Fleet.HeartbeatInterval)
	assert.Equal(t, 25*time.Second, cfg.Fleet.ProbeInterval)
	assert.Equal(t, 5*time.Second, cfg.Fleet.ReplyDelayMin)
	assert.Equal(t, 10*time.Second, cfg.Fleet.ReplyDelayMax)
}

func TestLoadWorkerConfig_RequiresCredentials(t *testing.T) {
	t.Setenv("API_ID", "")
	t.Setenv("API_HASH", "")
	_, err := LoadWorkerConfig()
	require.Error(t, err)
}

func TestLoadWorkerConfig_StableWorkerID(t *testing.T) {
	setWorkerCreds(t)
	t.Setenv("WORKER_ID", "worker-7")

	cfg, err := LoadWorkerConfig()
	require.NoError(t, err)
	assert.Equal(t, "worker-7", cfg.WorkerID)
}

func TestLoadWorkerConfig_BridgeURLOverride(t *testing.T) {
	setWorkerCreds(t)
	t.Setenv("BRIDGE_URL", "ws://bridge.internal:9000/session")

	cfg, err := LoadWorkerConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://bridge.internal:9000/session", cfg.BridgeURL)
}

func TestLoadWorkerConfig_SecondsOverrides(t *testing.T) {
	setWorkerCreds(t)
	t.Setenv("HEARTBEAT_INTERVAL_SECONDS", "30")
	t.Setenv("POLL_INTERVAL_SECONDS", "2")
	t.Setenv("MAX_ACTIVE", "5")

	cfg, err := LoadWorkerConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Fleet.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.Fleet.PollInterval)
	assert.Equal(t, 5, cfg.Fleet.MaxActive)
}

func TestLoadWorkerConfig_DurationSyntax(t *testing.T) {
	setWorkerCreds(t)
	t.Setenv("SHUTDOWN_GRACE_SECONDS", "1m30s")

	cfg, err := LoadWorkerConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Fleet.ShutdownGrace)
}

func TestLoadWorkerConfig_InvalidMaxActive(t *testing.T) {
	setWorkerCreds(t)
	t.Setenv("MAX_ACTIVE", "zero")
	_, err := LoadWorkerConfig()
	require.Error(t, err)
}

func TestLoadRegistryConfig_Defaults(t *testing.T) {
	cfg, err := LoadRegistryConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.StaleLease)
	assert.Equal(t, 60*time.Second, cfg.WatchdogInterval)
	assert.Equal(t, 90*time.Second, cfg.WatchdogTimeout)
	assert.Equal(t, 300*time.Second, cfg.PlanCheckInterval)
}

func TestLoadRegistryConfig_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("WATCHDOG_TIMEOUT_SECONDS", "120")

	cfg, err := LoadRegistryConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 120*time.Second, cfg.WatchdogTimeout)
}
