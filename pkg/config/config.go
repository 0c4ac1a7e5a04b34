// Package config loads process configuration from the environment. Both
// binaries read a .env file first when present, then the environment wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/replyfleet/replyfleet/pkg/worker"
)

// RegistryConfig configures the registry process.
type RegistryConfig struct {
	// HTTPPort is the listen port for the API server.
	HTTPPort int

	// StaleLease is the age past which a last-seen timestamp no longer
	// protects a lease from being reclaimed.
	StaleLease time.Duration

	// WatchdogInterval is how often the watchdog sweeps for dead leases.
	WatchdogInterval time.Duration

	// WatchdogTimeout is the heartbeat silence after which the watchdog
	// releases a lease.
	WatchdogTimeout time.Duration

	// PlanCheckInterval is how often expired paid plans are downgraded.
	PlanCheckInterval time.Duration
}

// LoadRegistryConfig reads registry settings from the environment.
func LoadRegistryConfig() (RegistryConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("HTTP_PORT", "8000"))
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("invalid HTTP_PORT: %w", err)
	}
	return RegistryConfig{
		HTTPPort:          port,
		StaleLease:        envDuration("STALE_LEASE_SECONDS", 45*time.Second),
		WatchdogInterval:  envDuration("WATCHDOG_INTERVAL_SECONDS", 60*time.Second),
		WatchdogTimeout:   envDuration("WATCHDOG_TIMEOUT_SECONDS", 90*time.Second),
		PlanCheckInterval: envDuration("PLAN_CHECK_INTERVAL_SECONDS", 300*time.Second),
	}, nil
}

// WorkerConfig configures the worker process.
type WorkerConfig struct {
	// WorkerID identifies this process to the registry. Generated when
	// unset; a restart then looks like a new worker and inherited leases
	// expire via the watchdog.
	WorkerID string

	// BackendURL is the registry base URL.
	BackendURL string

	// BridgeURL is the websocket endpoint of the session bridge that holds
	// the platform connections.
	BridgeURL string

	// Credentials identify the application to the chat platform. Both
	// fields are required.
	APIID   int
	APIHash string

	// Fleet carries the supervisor and session timings.
	Fleet worker.Config
}

// LoadWorkerConfig reads worker settings from the environment and validates
// the required platform credentials.
func LoadWorkerConfig() (WorkerConfig, error) {
	cfg := WorkerConfig{
		WorkerID:   getEnvOrDefault("WORKER_ID", uuid.NewString()),
		BackendURL: getEnvOrDefault("BACKEND_URL", "http://localhost:8000"),
		BridgeURL:  getEnvOrDefault("BRIDGE_URL", "ws://localhost:8800/session"),
		APIHash:    os.Getenv("API_HASH"),
	}

	if raw := os.Getenv("API_ID"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return WorkerConfig{}, fmt.Errorf("invalid API_ID: %w", err)
		}
		cfg.APIID = id
	}
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return WorkerConfig{}, fmt.Errorf("API_ID and API_HASH are required")
	}

	maxActive, err := strconv.Atoi(getEnvOrDefault("MAX_ACTIVE", "20"))
	if err != nil || maxActive <= 0 {
		return WorkerConfig{}, fmt.Errorf("invalid MAX_ACTIVE: %q", os.Getenv("MAX_ACTIVE"))
	}

	cfg.Fleet = worker.Config{
		MaxActive:         maxActive,
		PollInterval:      envDuration("POLL_INTERVAL_SECONDS", 5*time.Second),
		IdleSleep:         envDuration("IDLE_SLEEP_SECONDS", 8*time.Second),
		ErrorSleep:        envDuration("ERROR_SLEEP_SECONDS", 10*time.Second),
		HeartbeatInterval: envDuration("HEARTBEAT_INTERVAL_SECONDS", 15*time.Second),
		ProbeInterval:     envDuration("PROBE_INTERVAL_SECONDS", 25*time.Second),
		TriggerCacheTTL:   envDuration("TRIGGER_CACHE_TTL_SECONDS", 10*time.Second),
		ReplyDelayMin:     envDuration("REPLY_DELAY_MIN_SECONDS", 5*time.Second),
		ReplyDelayMax:     envDuration("REPLY_DELAY_MAX_SECONDS", 10*time.Second),
		ShutdownGrace:     envDuration("SHUTDOWN_GRACE_SECONDS", 30*time.Second),
	}
	return cfg, nil
}

// envDuration reads a duration given in whole seconds, falling back to
// time.ParseDuration syntax for values like "1m30s".
func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return def
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
