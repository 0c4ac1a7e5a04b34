// Package worker runs the session fleet for one worker process: claiming
// users from the registry, keeping a live client session per claimed user,
// and reporting lease and revocation state back.
package worker

import (
	"context"
	"time"

	"github.com/replyfleet/replyfleet/pkg/models"
)

// RegistryClient is the slice of the registry API the worker needs.
// *registryclient.Client implements it.
type RegistryClient interface {
	Claim(ctx context.Context, limit int) ([]models.ClaimedUser, error)
	Heartbeat(ctx context.Context, telegramID int64) error
	SessionRevoked(ctx context.Context, telegramID int64) error
	WorkerDisconnected(ctx context.Context, telegramID int64) error
	Triggers(ctx context.Context, telegramID int64) ([]models.Trigger, error)
}

// Config carries the supervisor and session timings. Zero values are
// replaced with defaults matching a fleet tuned for tens of sessions per
// process.
type Config struct {
	// MaxActive caps concurrent client sessions in this process.
	MaxActive int

	// PollInterval is the pause between claim rounds when below capacity.
	PollInterval time.Duration

	// IdleSleep is the pause when the process is at capacity.
	IdleSleep time.Duration

	// ErrorSleep is the pause after a failed claim round.
	ErrorSleep time.Duration

	// HeartbeatInterval is how often each session extends its lease.
	HeartbeatInterval time.Duration

	// ProbeInterval is how often each session verifies the token is still
	// accepted by the platform.
	ProbeInterval time.Duration

	// TriggerCacheTTL bounds the staleness of per-user trigger lists.
	TriggerCacheTTL time.Duration

	// ReplyDelayMin and ReplyDelayMax bound the humanization delay before
	// each reply.
	ReplyDelayMin time.Duration
	ReplyDelayMax time.Duration

	// ShutdownGrace bounds how long Stop waits for sessions to close.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		MaxActive:         20,
		PollInterval:      5 * time.Second,
		IdleSleep:         8 * time.Second,
		ErrorSleep:        10 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		ProbeInterval:     25 * time.Second,
		TriggerCacheTTL:   10 * time.Second,
		ReplyDelayMin:     5 * time.Second,
		ReplyDelayMax:     10 * time.Second,
		ShutdownGrace:     30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxActive <= 0 {
		c.MaxActive = d.MaxActive
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = d.IdleSleep
	}
	if c.ErrorSleep <= 0 {
		c.ErrorSleep = d.ErrorSleep
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = d.ProbeInterval
	}
	if c.TriggerCacheTTL <= 0 {
		c.TriggerCacheTTL = d.TriggerCacheTTL
	}
	if c.ReplyDelayMin <= 0 {
		c.ReplyDelayMin = d.ReplyDelayMin
	}
	if c.ReplyDelayMax < c.ReplyDelayMin {
		c.ReplyDelayMax = c.ReplyDelayMin
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
}
