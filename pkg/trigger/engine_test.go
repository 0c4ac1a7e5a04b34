package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyfleet/replyfleet/pkg/models"
	"github.com/replyfleet/replyfleet/pkg/platform"
)

type fakeSource struct {
	mu       sync.Mutex
	triggers []models.Trigger
	err      error
	calls    int
}

func (f *fakeSource) Triggers(ctx context.Context, telegramID int64) ([]models.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.triggers, nil
}

type fakeClient struct {
	mu       sync.Mutex
	calls    []string
	replies  []string
	replyErr error
	readErr  error
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Authorized(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeClient) Me(ctx context.Context) (int64, error)        { return 0, nil }
func (f *fakeClient) OnMessage(h platform.Handler)                 {}
func (f *fakeClient) Run(ctx context.Context) error                { return nil }
func (f *fakeClient) Disconnect() error                            { return nil }

func (f *fakeClient) MarkRead(ctx context.Context, chatID, messageID int64) error {
	f.record("mark_read")
	return f.readErr
}

func (f *fakeClient) Typing(ctx context.Context, chatID int64) error {
	f.record("typing")
	return nil
}

func (f *fakeClient) Reply(ctx context.Context, to platform.Message, text string) error {
	f.record("reply")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return f.replyErr
}

func newTestEngine(source Source) *Engine {
	engine := NewEngine(source, 100, 5*time.Second, 10*time.Second)
	engine.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return engine
}

func incoming(text string) platform.Message {
	return platform.Message{ID: 1, ChatID: 42, SenderID: 7, Text: text, Peer: platform.PeerUser}
}

func TestHandleMessage_RepliesOnMatch(t *testing.T) {
	source := &fakeSource{triggers: []models.Trigger{
		{ID: 1, Phrase: "price", ReplyBody: "see the price list", Active: true},
	}}
	client := &fakeClient{}
	engine := newTestEngine(source)

	err := engine.HandleMessage(context.Background(), client, 100, incoming("price? and shipping"))
	require.NoError(t, err)

	assert.Equal(t, []string{"mark_read", "typing", "reply"}, client.calls)
	assert.Equal(t, []string{"see the price list"}, client.replies)
}

func TestHandleMessage_IgnoredTraffic(t *testing.T) {
	source := &fakeSource{triggers: []models.Trigger{
		{ID: 1, Phrase: "hi", ReplyBody: "hey", Active: true},
	}}

	tests := []struct {
		name string
		msg  platform.Message
	}{
		{name: "group message", msg: platform.Message{ChatID: 1, SenderID: 7, Text: "hi", Peer: platform.PeerGroup}},
		{name: "channel message", msg: platform.Message{ChatID: 1, SenderID: 7, Text: "hi", Peer: platform.PeerChannel}},
		{name: "outgoing", msg: platform.Message{ChatID: 1, SenderID: 7, Text: "hi", Outgoing: true, Peer: platform.PeerUser}},
		{name: "self message", msg: platform.Message{ChatID: 1, SenderID: 100, Text: "hi", Peer: platform.PeerUser}},
		{name: "empty text", msg: platform.Message{ChatID: 1, SenderID: 7, Text: "", Peer: platform.PeerUser}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			engine := newTestEngine(source)
			require.NoError(t, engine.HandleMessage(context.Background(), client, 100, tt.msg))
			assert.Empty(t, client.calls, "ignored traffic must not touch the platform")
		})
	}
}

func TestHandleMessage_NoMatchNoCalls(t *testing.T) {
	source := &fakeSource{triggers: []models.Trigger{
		{ID: 1, Phrase: "price", ReplyBody: "list", Active: true},
	}}
	client := &fakeClient{}
	engine := newTestEngine(source)

	require.NoError(t, engine.HandleMessage(context.Background(), client, 100, incoming("hello there")))
	assert.Empty(t, client.calls)
}

func TestHandleMessage_FetchFailureSkipsMessage(t *testing.T) {
	source := &fakeSource{err: errors.New("registry down")}
	client := &fakeClient{}
	engine := newTestEngine(source)

	// Transient registry failure is not the session's problem.
	require.NoError(t, engine.HandleMessage(context.Background(), client, 100, incoming("price")))
	assert.Empty(t, client.calls)
}

func TestHandleMessage_CancelledDuringDelay(t *testing.T) {
	source := &fakeSource{triggers: []models.Trigger{
		{ID: 1, Phrase: "price", ReplyBody: "list", Active: true},
	}}
	client := &fakeClient{}
	engine := NewEngine(source, 100, 5*time.Second, 10*time.Second)
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	require.NoError(t, engine.HandleMessage(context.Background(), client, 100, incoming("price")))
	assert.NotContains(t, client.calls, "reply", "abandoned reply must not be sent")
}

func TestHandleMessage_RevocationPropagates(t *testing.T) {
	source := &fakeSource{triggers: []models.Trigger{
		{ID: 1, Phrase: "price", ReplyBody: "list", Active: true},
	}}
	client := &fakeClient{
		replyErr: fmt.Errorf("send: %w", platform.ErrSessionRevoked),
	}
	engine := newTestEngine(source)

	err := engine.HandleMessage(context.Background(), client, 100, incoming("price"))
	require.Error(t, err)
	assert.True(t, platform.IsRevocation(err))
}

func TestHandleMessage_TransientSendFailureSwallowed(t *testing.T) {
	source := &fakeSource{triggers: []models.Trigger{
		{ID: 1, Phrase: "price", ReplyBody: "list", Active: true},
	}}
	client := &fakeClient{replyErr: errors.New("flood wait")}
	engine := newTestEngine(source)

	require.NoError(t, engine.HandleMessage(context.Background(), client, 100, incoming("price")))
}

func TestHandleMessage_MarkReadRevocationPropagates(t *testing.T) {
	source := &fakeSource{triggers: []models.Trigger{
		{ID: 1, Phrase: "price", ReplyBody: "list", Active: true},
	}}
	client := &fakeClient{readErr: platform.ErrAuthKeyUnknown}
	engine := newTestEngine(source)

	err := engine.HandleMessage(context.Background(), client, 100, incoming("price"))
	require.Error(t, err)
	assert.True(t, platform.IsRevocation(err))
	assert.NotContains(t, client.calls, "reply")
}

func TestReplyDelay_WithinBounds(t *testing.T) {
	engine := NewEngine(&fakeSource{}, 100, 5*time.Second, 10*time.Second)

	engine.rnd = func() float64 { return 0 }
	assert.Equal(t, 5*time.Second, engine.replyDelay())

	engine.rnd = func() float64 { return 0.9999 }
	delay := engine.replyDelay()
	assert.GreaterOrEqual(t, delay, 5*time.Second)
	assert.Less(t, delay, 10*time.Second)
}
