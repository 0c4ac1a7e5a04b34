package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/replyfleet/replyfleet/pkg/metrics"
	"github.com/replyfleet/replyfleet/pkg/platform"
)

// Engine evaluates incoming messages against a user's triggers and sends
// humanized replies. One Engine instance serves one client session; the
// platform delivers messages sequentially, so HandleMessage never runs
// concurrently with itself.
type Engine struct {
	source     Source
	telegramID int64
	delayMin   time.Duration
	delayMax   time.Duration

	// Seams for tests. rnd returns a value in [0, 1); sleep must honor ctx.
	rnd   func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine for one user's session. Replies are delayed
// uniformly within [delayMin, delayMax] to read as human.
func NewEngine(source Source, telegramID int64, delayMin, delayMax time.Duration) *Engine {
	if delayMin <= 0 {
		delayMin = 5 * time.Second
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &Engine{
		source:     source,
		telegramID: telegramID,
		delayMin:   delayMin,
		delayMax:   delayMax,
		rnd:        rand.Float64,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) replyDelay() time.Duration {
	span := e.delayMax - e.delayMin
	if span <= 0 {
		return e.delayMin
	}
	return e.delayMin + time.Duration(e.rnd()*float64(span))
}

// HandleMessage processes one incoming message. Group and channel traffic,
// outgoing messages, self-messages, and empty text are ignored. Revocation
// errors propagate so the session tears down; other send failures are
// logged and the message is dropped.
func (e *Engine) HandleMessage(ctx context.Context, client platform.Client, selfID int64, msg platform.Message) error {
	if msg.Peer != platform.PeerUser || msg.Outgoing || msg.SenderID == selfID || msg.Text == "" {
		return nil
	}

	triggers, err := e.source.Triggers(ctx, e.telegramID)
	if err != nil {
		slog.Warn("Trigger fetch failed, skipping message",
			"telegram_id", e.telegramID, "chat_id", msg.ChatID, "error", err)
		return nil
	}

	match := FirstMatch(triggers, msg.Text)
	if match == nil {
		return nil
	}

	if err := client.MarkRead(ctx, msg.ChatID, msg.ID); err != nil {
		if platform.IsRevocation(err) {
			return err
		}
		slog.Debug("Mark read failed", "telegram_id", e.telegramID, "error", err)
	}
	if err := client.Typing(ctx, msg.ChatID); err != nil {
		if platform.IsRevocation(err) {
			return err
		}
		slog.Debug("Typing indicator failed", "telegram_id", e.telegramID, "error", err)
	}

	if err := e.sleep(ctx, e.replyDelay()); err != nil {
		return nil // shutdown mid-delay, reply is abandoned
	}

	if err := client.Reply(ctx, msg, match.ReplyBody); err != nil {
		if platform.IsRevocation(err) {
			return fmt.Errorf("reply failed: %w", err)
		}
		slog.Warn("Reply failed",
			"telegram_id", e.telegramID, "chat_id", msg.ChatID, "trigger_id", match.ID, "error", err)
		return nil
	}

	metrics.RepliesSentTotal.Inc()
	slog.Info("Reply sent",
		"telegram_id", e.telegramID, "chat_id", msg.ChatID, "trigger_id", match.ID)
	return nil
}
