package worker

import (
	"context"
	"sync"
	"time"

	"github.com/replyfleet/replyfleet/pkg/models"
	"github.com/replyfleet/replyfleet/pkg/platform"
)

// fakeRegistry scripts claim batches and records lease reports.
type fakeRegistry struct {
	mu sync.Mutex

	// batches are returned from successive Claim calls; after they run out
	// every Claim returns empty.
	batches [][]models.ClaimedUser

	claimLimits  []int
	heartbeats   []int64
	heartbeatErr error
	revoked      []int64
	disconnected []int64
	triggersByID map[int64][]models.Trigger
}

func (f *fakeRegistry) Claim(ctx context.Context, limit int) ([]models.ClaimedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimLimits = append(f.claimLimits, limit)
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeRegistry) Heartbeat(ctx context.Context, telegramID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, telegramID)
	return f.heartbeatErr
}

func (f *fakeRegistry) SessionRevoked(ctx context.Context, telegramID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, telegramID)
	return nil
}

func (f *fakeRegistry) WorkerDisconnected(ctx context.Context, telegramID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, telegramID)
	return nil
}

func (f *fakeRegistry) Triggers(ctx context.Context, telegramID int64) ([]models.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggersByID[telegramID], nil
}

func (f *fakeRegistry) revokedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.revoked...)
}

func (f *fakeRegistry) disconnectedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.disconnected...)
}

func (f *fakeRegistry) heartbeatIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.heartbeats...)
}

// fakePlatformClient is a controllable platform.Client whose Run blocks
// until the session context is cancelled.
type fakePlatformClient struct {
	mu         sync.Mutex
	authorized bool
	authErr    error
	meID       int64
	meErrAfter int // Me calls beyond this count return meErr
	meErr      error
	meCalls    int
	handler    platform.Handler
}

func (f *fakePlatformClient) Authorized(ctx context.Context) (bool, error) {
	return f.authorized, f.authErr
}

func (f *fakePlatformClient) Me(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	if f.meErr != nil && f.meCalls > f.meErrAfter {
		return 0, f.meErr
	}
	return f.meID, nil
}

func (f *fakePlatformClient) OnMessage(h platform.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakePlatformClient) MarkRead(ctx context.Context, chatID, messageID int64) error { return nil }
func (f *fakePlatformClient) Typing(ctx context.Context, chatID int64) error              { return nil }
func (f *fakePlatformClient) Reply(ctx context.Context, to platform.Message, text string) error {
	return nil
}

func (f *fakePlatformClient) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakePlatformClient) Disconnect() error { return nil }

// fakeDialer hands out one fakePlatformClient per Dial and records the
// tokens it saw.
type fakeDialer struct {
	mu      sync.Mutex
	dialErr error
	clients []*fakePlatformClient
	tokens  []string
	build   func() *fakePlatformClient
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		build: func() *fakePlatformClient {
			return &fakePlatformClient{authorized: true, meID: 100}
		},
	}
}

func (f *fakeDialer) Dial(ctx context.Context, token string) (platform.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	client := f.build()
	f.clients = append(f.clients, client)
	f.tokens = append(f.tokens, token)
	return client, nil
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeDialer) dialedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// fastConfig returns timings tight enough for unit tests.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.IdleSleep = 5 * time.Millisecond
	cfg.ErrorSleep = 5 * time.Millisecond
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.ShutdownGrace = time.Second
	return cfg
}
