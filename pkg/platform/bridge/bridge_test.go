package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyfleet/replyfleet/pkg/platform"
)

// fakeBridge is a scripted bridge endpoint. It answers every op with a
// canned response and can push message events into the socket.
type fakeBridge struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	requests  []request
	initKind  string // error_kind returned for init; empty means success
	userID    int64
	connReady chan struct{}
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{userID: 100, connReady: make(chan struct{})}
}

func (b *fakeBridge) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		close(b.connReady)

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			b.mu.Lock()
			b.requests = append(b.requests, req)
			b.mu.Unlock()

			resp := frame{ID: req.ID, OK: true}
			switch req.Op {
			case "init":
				if b.initKind != "" {
					resp.OK = false
					resp.Error = "init rejected"
					resp.ErrorKind = b.initKind
				}
			case "authorized":
				resp.Authorized = true
			case "me":
				resp.UserID = b.userID
			case "close":
				continue
			}
			out, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	}
}

func (b *fakeBridge) pushMessage(t *testing.T, msg wireMessage) {
	t.Helper()
	select {
	case <-b.connReady:
	case <-time.After(time.Second):
		t.Fatal("bridge connection never established")
	}
	out, err := json.Marshal(frame{Op: "message", OK: true, Message: &msg})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.conn.Write(ctx, websocket.MessageText, out))
}

func (b *fakeBridge) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]string, len(b.requests))
	for i, r := range b.requests {
		ops[i] = r.Op
	}
	return ops
}

func startBridge(t *testing.T, b *fakeBridge) *Dialer {
	t.Helper()
	server := httptest.NewServer(b.handler())
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return NewDialer(wsURL, platform.Credentials{APIID: 1, APIHash: "hash"})
}

func TestDial_InitAndRPCs(t *testing.T) {
	bridge := newFakeBridge()
	dialer := startBridge(t, bridge)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialer.Dial(ctx, "tok-1")
	require.NoError(t, err)
	defer func() { _ = client.Disconnect() }()

	authorized, err := client.Authorized(ctx)
	require.NoError(t, err)
	assert.True(t, authorized)

	selfID, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), selfID)

	require.NoError(t, client.Typing(ctx, 42))
	assert.Equal(t, []string{"init", "authorized", "me", "typing"}, bridge.ops())

	bridge.mu.Lock()
	init := bridge.requests[0]
	bridge.mu.Unlock()
	assert.Equal(t, "tok-1", init.Token)
	assert.Equal(t, 1, init.APIID)
}

func TestDial_RevokedTokenMapsToTaggedError(t *testing.T) {
	bridge := newFakeBridge()
	bridge.initKind = kindSessionRevoked
	dialer := startBridge(t, bridge)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := dialer.Dial(ctx, "tok-dead")
	require.Error(t, err)
	assert.True(t, platform.IsRevocation(err))
}

func TestRun_DeliversMessagesSequentially(t *testing.T) {
	bridge := newFakeBridge()
	dialer := startBridge(t, bridge)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialer.Dial(ctx, "tok-1")
	require.NoError(t, err)
	defer func() { _ = client.Disconnect() }()

	received := make(chan platform.Message, 4)
	client.OnMessage(func(ctx context.Context, msg platform.Message) {
		received <- msg
	})

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	go func() { _ = client.Run(runCtx) }()

	bridge.pushMessage(t, wireMessage{ID: 1, ChatID: 42, SenderID: 7, Text: "hi", Peer: "user"})
	bridge.pushMessage(t, wireMessage{ID: 2, ChatID: 43, SenderID: 8, Text: "yo", Peer: "group"})

	first := recvMessage(t, received)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, platform.PeerUser, first.Peer)

	second := recvMessage(t, received)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, platform.PeerGroup, second.Peer)
}

func recvMessage(t *testing.T, ch <-chan platform.Message) platform.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
		return platform.Message{}
	}
}

func TestWireMessage_PeerMapping(t *testing.T) {
	assert.Equal(t, platform.PeerUser, (&wireMessage{Peer: "user"}).toPlatform().Peer)
	assert.Equal(t, platform.PeerGroup, (&wireMessage{Peer: "group"}).toPlatform().Peer)
	assert.Equal(t, platform.PeerChannel, (&wireMessage{Peer: "channel"}).toPlatform().Peer)
	assert.Equal(t, platform.PeerUser, (&wireMessage{Peer: ""}).toPlatform().Peer)
}
