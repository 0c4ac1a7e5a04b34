// Package platform defines the contract between the fleet and the chat
// platform. The wire transport lives behind the Dialer interface; the core
// only depends on these types and dispatches on tagged error variants,
// never on transport internals.
package platform

import (
	"context"
	"errors"
)

// Tagged error variants for platform-facing calls. The two revocation kinds
// are decisive: the session must be cleared and never retried. Everything
// else is transient and retried on the next tick.
var (
	// ErrSessionRevoked means the user explicitly revoked the session from
	// their device list.
	ErrSessionRevoked = errors.New("platform: session revoked by user")

	// ErrAuthKeyUnknown means the server no longer recognizes the auth key
	// the token was minted from.
	ErrAuthKeyUnknown = errors.New("platform: auth key unknown to server")
)

// IsRevocation reports whether err is one of the two revocation kinds.
func IsRevocation(err error) bool {
	return errors.Is(err, ErrSessionRevoked) || errors.Is(err, ErrAuthKeyUnknown)
}

// PeerKind classifies the chat a message arrived in.
type PeerKind int

// Peer kinds.
const (
	PeerUser PeerKind = iota
	PeerGroup
	PeerChannel
)

// Message is one incoming chat message.
type Message struct {
	ID       int64
	ChatID   int64
	SenderID int64
	Text     string
	Outgoing bool
	Peer     PeerKind
}

// Handler processes one incoming message. Handlers for the same client are
// invoked strictly sequentially: the next message is delivered only after
// the current handler returns, humanization delay included.
type Handler func(ctx context.Context, msg Message)

// Client is a live, logged-in connection for one user.
type Client interface {
	// Authorized reports whether the session token is still accepted by the
	// server. A revoked token yields (false, nil) or a revocation error.
	Authorized(ctx context.Context) (bool, error)

	// Me returns the account's own user id. Doubles as the liveness probe:
	// a revoked session surfaces as a revocation error here.
	Me(ctx context.Context) (int64, error)

	// OnMessage registers the handler for incoming messages. Must be called
	// before Run.
	OnMessage(h Handler)

	// MarkRead acknowledges the chat up to the given message.
	MarkRead(ctx context.Context, chatID, messageID int64) error

	// Typing shows a typing indicator in the chat.
	Typing(ctx context.Context, chatID int64) error

	// Reply sends text as a reply to the given message.
	Reply(ctx context.Context, to Message, text string) error

	// Run blocks until the client disconnects or ctx is cancelled.
	Run(ctx context.Context) error

	// Disconnect tears the connection down. Safe to call more than once.
	Disconnect() error
}

// Dialer constructs a connected client from a session token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Client, error)
}

// Credentials identify the application to the chat platform.
type Credentials struct {
	APIID   int
	APIHash string
}
