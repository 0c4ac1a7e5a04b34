// Package cleanup runs the registry-side background sweeps: the lease
// watchdog and the plan-expiry check. Both are idempotent, so multiple
// registry replicas may run them concurrently.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/replyfleet/replyfleet/pkg/metrics"
)

// LeaseStore is the subset of the user service the sweeps need.
type LeaseStore interface {
	ReleaseStaleLeases(ctx context.Context, cutoff time.Time) (int64, error)
	ExpirePlans(ctx context.Context, now time.Time) (int64, error)
}

// Config holds sweep intervals and the lease timeout.
type Config struct {
	// WatchdogInterval is how often stale leases are scanned for.
	WatchdogInterval time.Duration

	// WatchdogTimeout is how long a lease may miss heartbeats before the
	// watchdog frees it. Must exceed the claim staleness threshold so a
	// lease is always claim-stale before it is watchdog-released.
	WatchdogTimeout time.Duration

	// PlanCheckInterval is how often expired plans are downgraded.
	PlanCheckInterval time.Duration
}

// DefaultConfig returns the built-in sweep defaults.
func DefaultConfig() Config {
	return Config{
		WatchdogInterval:  60 * time.Second,
		WatchdogTimeout:   90 * time.Second,
		PlanCheckInterval: 300 * time.Second,
	}
}

// Service owns the sweep goroutines.
type Service struct {
	store    LeaseStore
	config   Config
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	lastSweep     time.Time
	totalReleased int64
}

// NewService creates a cleanup service.
func NewService(store LeaseStore, cfg Config) *Service {
	return &Service{
		store:  store,
		config: cfg,
		stopCh: make(chan struct{}),
	}
}

// Start launches the watchdog and plan-expiry loops.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.runWatchdog(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.runPlanExpiry(ctx)
	}()
	slog.Info("Cleanup sweeps started",
		"watchdog_interval", s.config.WatchdogInterval,
		"watchdog_timeout", s.config.WatchdogTimeout,
		"plan_check_interval", s.config.PlanCheckInterval)
}

// Stop signals the loops to exit and waits for them. Safe to call twice.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Stats returns the last sweep time and the total leases released.
func (s *Service) Stats() (lastSweep time.Time, totalReleased int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.totalReleased
}

func (s *Service) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.config.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepStaleLeases(ctx)
		}
	}
}

// sweepStaleLeases frees leases whose heartbeat is older than the timeout.
// A released user becomes claim-eligible on the next claim cycle, so a
// crashed worker's users migrate within roughly timeout + poll interval.
func (s *Service) sweepStaleLeases(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.WatchdogTimeout)
	released, err := s.store.ReleaseStaleLeases(ctx, cutoff)
	if err != nil {
		slog.Error("Watchdog sweep failed", "error", err)
		return
	}

	s.mu.Lock()
	s.lastSweep = time.Now()
	s.totalReleased += released
	s.mu.Unlock()

	if released > 0 {
		metrics.WatchdogReleasedTotal.Add(float64(released))
		slog.Warn("Watchdog released stale leases", "count", released)
	}
}

func (s *Service) runPlanExpiry(ctx context.Context) {
	ticker := time.NewTicker(s.config.PlanCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			expired, err := s.store.ExpirePlans(ctx, time.Now())
			if err != nil {
				slog.Error("Plan expiry sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				metrics.PlansExpiredTotal.Add(float64(expired))
			}
		}
	}
}
