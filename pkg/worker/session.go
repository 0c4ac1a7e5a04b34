package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/replyfleet/replyfleet/pkg/metrics"
	"github.com/replyfleet/replyfleet/pkg/platform"
	"github.com/replyfleet/replyfleet/pkg/registryclient"
	"github.com/replyfleet/replyfleet/pkg/trigger"
)

// ClientSession owns one claimed user's live connection: the platform
// client, its heartbeat loop, its liveness probe, and the final report to
// the registry when the session ends.
type ClientSession struct {
	telegramID int64
	token      string
	dialer     platform.Dialer
	registry   RegistryClient
	cfg        Config

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	revoked atomic.Bool

	// reportOnce guards the end-of-session registry report so the teardown
	// path and an explicit stop cannot double-report.
	reportOnce sync.Once
}

// newClientSession binds the session lifetime to parent. stop is usable
// immediately, before run has begun.
func newClientSession(parent context.Context, telegramID int64, token string, dialer platform.Dialer, registry RegistryClient, cfg Config) *ClientSession {
	ctx, cancel := context.WithCancel(parent)
	return &ClientSession{
		telegramID: telegramID,
		token:      token,
		dialer:     dialer,
		registry:   registry,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Token returns the session token this session was built from. The
// supervisor compares it against freshly claimed batches to detect token
// rotation.
func (s *ClientSession) Token() string {
	return s.token
}

func (s *ClientSession) running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// stop asks the session to shut down. It returns immediately; the caller
// waits on the supervisor's WaitGroup.
func (s *ClientSession) stop() {
	s.cancel()
}

// discardReport suppresses the end-of-session registry report. Used on
// token rotation, where the replacement session owns the lease and a
// trailing disconnect report from the old session would stomp it.
func (s *ClientSession) discardReport() {
	s.reportOnce.Do(func() {})
}

// run drives the whole session lifecycle and blocks until it ends. The
// heartbeat and probe loops start only after the token is confirmed
// authorized, so a dead token never looks alive to the registry.
func (s *ClientSession) run() {
	defer close(s.done)

	ctx, cancel := s.ctx, s.cancel
	defer cancel()
	defer s.report()

	client, err := s.dialer.Dial(ctx, s.token)
	if err != nil {
		if platform.IsRevocation(err) {
			s.revoked.Store(true)
		}
		slog.Warn("Session dial failed", "telegram_id", s.telegramID, "error", err)
		return
	}
	defer func() { _ = client.Disconnect() }()

	authorized, err := client.Authorized(ctx)
	if err != nil {
		if platform.IsRevocation(err) {
			s.revoked.Store(true)
		}
		slog.Warn("Authorization check failed", "telegram_id", s.telegramID, "error", err)
		return
	}
	if !authorized {
		s.revoked.Store(true)
		slog.Info("Session token no longer authorized", "telegram_id", s.telegramID)
		return
	}

	selfID, err := client.Me(ctx)
	if err != nil {
		if platform.IsRevocation(err) {
			s.revoked.Store(true)
		}
		slog.Warn("Self lookup failed", "telegram_id", s.telegramID, "error", err)
		return
	}

	cache := trigger.NewCache(s.registry, s.cfg.TriggerCacheTTL)
	engine := trigger.NewEngine(cache, s.telegramID, s.cfg.ReplyDelayMin, s.cfg.ReplyDelayMax)
	client.OnMessage(func(msgCtx context.Context, msg platform.Message) {
		if err := engine.HandleMessage(msgCtx, client, selfID, msg); err != nil {
			if platform.IsRevocation(err) {
				s.revoked.Store(true)
				cancel()
				return
			}
			slog.Warn("Message handling failed", "telegram_id", s.telegramID, "error", err)
		}
	})

	metrics.SessionsStartedTotal.Inc()
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	slog.Info("Session started", "telegram_id", s.telegramID, "self_id", selfID)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.heartbeatLoop(ctx, cancel)
	}()
	go func() {
		defer loops.Done()
		s.probeLoop(ctx, cancel, client)
	}()

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		if platform.IsRevocation(err) {
			s.revoked.Store(true)
		}
		slog.Warn("Session client exited", "telegram_id", s.telegramID, "error", err)
	}
	cancel()
	loops.Wait()
}

// heartbeatLoop extends the lease on a fixed interval. A 403 means the
// registry no longer holds a token for this user and the lease was already
// cleared server-side; a 404 means the user is gone. Either way the session
// is over. Transient failures are counted and retried on the next tick, the
// watchdog covers the case where they never stop.
func (s *ClientSession) heartbeatLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.registry.Heartbeat(ctx, s.telegramID); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.HeartbeatFailuresTotal.Inc()
			if registryclient.IsStatus(err, http.StatusForbidden) || registryclient.IsStatus(err, http.StatusNotFound) {
				slog.Info("Lease rejected, ending session", "telegram_id", s.telegramID, "error", err)
				cancel()
				return
			}
			slog.Warn("Heartbeat failed", "telegram_id", s.telegramID, "error", err)
		}
	}
}

// probeLoop verifies the token is still accepted by the platform. Message
// traffic alone cannot distinguish a quiet account from a revoked one.
func (s *ClientSession) probeLoop(ctx context.Context, cancel context.CancelFunc, client platform.Client) {
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := client.Me(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if platform.IsRevocation(err) {
				slog.Info("Liveness probe detected revocation", "telegram_id", s.telegramID)
				s.revoked.Store(true)
				cancel()
				return
			}
			slog.Debug("Liveness probe failed", "telegram_id", s.telegramID, "error", err)
		}
	}
}

// report tells the registry how the session ended. Revocation deletes the
// stored token; a clean exit only releases the lease so the user is
// reclaimable with the same token. Runs on a background context because the
// session context is already cancelled by the time we get here.
func (s *ClientSession) report() {
	s.reportOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if s.revoked.Load() {
			metrics.RevocationsTotal.Inc()
			if err := s.registry.SessionRevoked(ctx, s.telegramID); err != nil {
				slog.Error("Failed to report revocation", "telegram_id", s.telegramID, "error", err)
				return
			}
		}
		if err := s.registry.WorkerDisconnected(ctx, s.telegramID); err != nil {
			slog.Error("Failed to report disconnect", "telegram_id", s.telegramID, "error", err)
		}
	})
}

func (s *ClientSession) String() string {
	return fmt.Sprintf("session[%d]", s.telegramID)
}
