// Package bridge implements the platform contract over a WebSocket
// connection to the session bridge, the sidecar that holds the actual chat
// platform protocol client. One socket carries one user's session: JSON
// request/response frames correlated by id, interleaved with unsolicited
// message events.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/replyfleet/replyfleet/pkg/platform"
)

// Error kinds the bridge reports for platform-level auth failures.
const (
	kindSessionRevoked = "session_revoked"
	kindAuthKeyUnknown = "auth_key_unknown"
)

// Dialer connects sessions through one bridge endpoint.
type Dialer struct {
	url   string
	creds platform.Credentials
}

// NewDialer creates a dialer for the bridge at url.
func NewDialer(url string, creds platform.Credentials) *Dialer {
	return &Dialer{url: url, creds: creds}
}

type request struct {
	ID        int64  `json:"id"`
	Op        string `json:"op"`
	Token     string `json:"token,omitempty"`
	APIID     int    `json:"api_id,omitempty"`
	APIHash   string `json:"api_hash,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

type frame struct {
	ID         int64        `json:"id,omitempty"`
	Op         string       `json:"op,omitempty"`
	OK         bool         `json:"ok"`
	Error      string       `json:"error,omitempty"`
	ErrorKind  string       `json:"error_kind,omitempty"`
	Authorized bool         `json:"authorized,omitempty"`
	UserID     int64        `json:"user_id,omitempty"`
	Message    *wireMessage `json:"message,omitempty"`
}

type wireMessage struct {
	ID       int64  `json:"id"`
	ChatID   int64  `json:"chat_id"`
	SenderID int64  `json:"sender_id"`
	Text     string `json:"text"`
	Outgoing bool   `json:"outgoing"`
	Peer     string `json:"peer"`
}

func (m *wireMessage) toPlatform() platform.Message {
	peer := platform.PeerUser
	switch m.Peer {
	case "group":
		peer = platform.PeerGroup
	case "channel":
		peer = platform.PeerChannel
	}
	return platform.Message{
		ID:       m.ID,
		ChatID:   m.ChatID,
		SenderID: m.SenderID,
		Text:     m.Text,
		Outgoing: m.Outgoing,
		Peer:     peer,
	}
}

// mapError converts a bridge error frame into the tagged platform variants.
func mapError(f frame) error {
	switch f.ErrorKind {
	case kindSessionRevoked:
		return fmt.Errorf("%s: %w", f.Error, platform.ErrSessionRevoked)
	case kindAuthKeyUnknown:
		return fmt.Errorf("%s: %w", f.Error, platform.ErrAuthKeyUnknown)
	default:
		return errors.New(f.Error)
	}
}

// Dial opens the socket, starts the read pump, and initializes the session
// with the token. A token the platform rejects outright surfaces as a
// revocation error here.
func (d *Dialer) Dial(ctx context.Context, token string) (platform.Client, error) {
	conn, _, err := websocket.Dial(ctx, d.url, &websocket.DialOptions{})
	if err != nil {
		return nil, fmt.Errorf("bridge dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:    conn,
		ctx:     connCtx,
		cancel:  cancel,
		pending: make(map[int64]chan frame),
		events:  make(chan *wireMessage, 64),
	}
	go c.readLoop()

	if _, err := c.rpc(ctx, request{
		Op:      "init",
		Token:   token,
		APIID:   d.creds.APIID,
		APIHash: d.creds.APIHash,
	}); err != nil {
		_ = c.Disconnect()
		return nil, fmt.Errorf("bridge init: %w", err)
	}
	return c, nil
}

type client struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan frame

	handler platform.Handler
	events  chan *wireMessage

	closeOnce sync.Once
}

// rpc sends one request and waits for its correlated response.
func (c *client) rpc(ctx context.Context, req request) (frame, error) {
	c.mu.Lock()
	c.nextID++
	req.ID = c.nextID
	ch := make(chan frame, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return frame{}, err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-c.ctx.Done():
		return frame{}, errors.New("bridge connection closed")
	case resp := <-ch:
		if !resp.OK {
			return frame{}, mapError(resp)
		}
		return resp, nil
	}
}

func (c *client) Authorized(ctx context.Context) (bool, error) {
	resp, err := c.rpc(ctx, request{Op: "authorized"})
	if err != nil {
		return false, err
	}
	return resp.Authorized, nil
}

func (c *client) Me(ctx context.Context) (int64, error) {
	resp, err := c.rpc(ctx, request{Op: "me"})
	if err != nil {
		return 0, err
	}
	return resp.UserID, nil
}

func (c *client) OnMessage(h platform.Handler) {
	c.handler = h
}

func (c *client) MarkRead(ctx context.Context, chatID, messageID int64) error {
	_, err := c.rpc(ctx, request{Op: "mark_read", ChatID: chatID, MessageID: messageID})
	return err
}

func (c *client) Typing(ctx context.Context, chatID int64) error {
	_, err := c.rpc(ctx, request{Op: "typing", ChatID: chatID})
	return err
}

func (c *client) Reply(ctx context.Context, to platform.Message, text string) error {
	_, err := c.rpc(ctx, request{Op: "reply", ChatID: to.ChatID, MessageID: to.ID, Text: text})
	return err
}

// Run delivers message events to the handler one at a time until ctx is
// cancelled or the socket drops.
func (c *client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return errors.New("bridge connection closed")
		case msg := <-c.events:
			if c.handler != nil {
				c.handler(ctx, msg.toPlatform())
			}
		}
	}
}

func (c *client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.conn.Write(closeCtx, websocket.MessageText, []byte(`{"op":"close"}`))
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// readLoop routes correlated responses to their waiters and queues message
// events for Run. A full event queue drops the oldest event rather than
// stalling the pump.
func (c *client) readLoop() {
	// Waiters unblock through c.ctx when the pump dies.
	defer c.cancel()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
			continue
		}
		if f.Op == "message" && f.Message != nil {
			select {
			case c.events <- f.Message:
			default:
				select {
				case <-c.events:
				default:
				}
				select {
				case c.events <- f.Message:
				default:
				}
			}
		}
	}
}
