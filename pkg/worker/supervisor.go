package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/replyfleet/replyfleet/pkg/models"
	"github.com/replyfleet/replyfleet/pkg/platform"
)

// Supervisor runs the claim loop for one worker process and owns every
// ClientSession it starts. There is no lease handback on shutdown: the
// registry watchdog releases leases whose heartbeats stop, so a crash and a
// clean exit converge on the same state.
type Supervisor struct {
	workerID string
	registry RegistryClient
	dialer   platform.Dialer
	cfg      Config

	mu       sync.Mutex
	sessions map[int64]*ClientSession

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSupervisor creates a supervisor. Zero config fields get defaults.
func NewSupervisor(workerID string, registry RegistryClient, dialer platform.Dialer, cfg Config) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		workerID: workerID,
		registry: registry,
		dialer:   dialer,
		cfg:      cfg,
		sessions: make(map[int64]*ClientSession),
		stopCh:   make(chan struct{}),
	}
}

// Run executes claim rounds until Stop is called or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	slog.Info("Supervisor started", "worker_id", s.workerID, "max_active", s.cfg.MaxActive)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		active := s.pruneSessions()
		if active >= s.cfg.MaxActive {
			if !s.sleep(ctx, s.cfg.IdleSleep) {
				return
			}
			continue
		}

		claimed, err := s.registry.Claim(ctx, s.cfg.MaxActive-active)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Claim round failed", "worker_id", s.workerID, "error", err)
			if !s.sleep(ctx, s.cfg.ErrorSleep) {
				return
			}
			continue
		}

		started := s.startBatch(ctx, claimed)
		if started > 0 {
			slog.Info("Claimed users", "worker_id", s.workerID, "claimed", len(claimed), "started", started)
		}

		if !s.sleep(ctx, s.cfg.PollInterval) {
			return
		}
	}
}

// startBatch starts sessions for a claimed batch, honoring the capacity cap
// mid-batch. A claim for a user already served with the same token is a
// no-op; a different token means the user re-linked and the running session
// is torn down and rebuilt around the new token.
func (s *Supervisor) startBatch(ctx context.Context, claimed []models.ClaimedUser) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := 0
	for _, cu := range claimed {
		if len(s.sessions) >= s.cfg.MaxActive {
			break
		}
		if existing, ok := s.sessions[cu.TelegramID]; ok && existing.running() {
			if existing.Token() == cu.SessionToken {
				continue
			}
			slog.Info("Token rotated, rebuilding session", "telegram_id", cu.TelegramID)
			existing.discardReport()
			existing.stop()
			delete(s.sessions, cu.TelegramID)
		}

		sess := newClientSession(ctx, cu.TelegramID, cu.SessionToken, s.dialer, s.registry, s.cfg)
		s.sessions[cu.TelegramID] = sess
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run()
		}()
		started++
	}
	return started
}

// pruneSessions drops finished sessions from the map and returns the number
// still running.
func (s *Supervisor) pruneSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if !sess.running() {
			delete(s.sessions, id)
		}
	}
	return len(s.sessions)
}

// ActiveCount returns the number of running sessions.
func (s *Supervisor) ActiveCount() int {
	return s.pruneSessions()
}

// Stop shuts every session down and waits up to ShutdownGrace for them to
// finish their teardown reports. Leases are left to expire via heartbeat
// timeout.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		for _, sess := range s.sessions {
			sess.stop()
		}
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			slog.Info("Supervisor stopped", "worker_id", s.workerID)
		case <-time.After(s.cfg.ShutdownGrace):
			slog.Warn("Supervisor stop timed out with sessions still closing", "worker_id", s.workerID)
		}
	})
}

// sleep pauses for d, returning false if the supervisor should exit.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
