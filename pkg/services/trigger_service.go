package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replyfleet/replyfleet/pkg/models"
)

// TriggerService manages per-user trigger rules and the plan-derived cap.
type TriggerService struct {
	pool *pgxpool.Pool
}

// NewTriggerService creates a TriggerService.
func NewTriggerService(pool *pgxpool.Pool) *TriggerService {
	return &TriggerService{pool: pool}
}

// NormalizePhrase lowercases and trims a trigger phrase. The stored phrase is
// always normalized so the per-user uniqueness constraint is effectively
// case-insensitive.
func NormalizePhrase(phrase string) string {
	return strings.ToLower(strings.TrimSpace(phrase))
}

// ListByTelegramID returns the user's triggers in insertion order. The
// trigger engine depends on this order: the first matching trigger wins.
func (s *TriggerService) ListByTelegramID(ctx context.Context, telegramID int64) ([]models.Trigger, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.user_id, t.phrase, t.reply_body, t.active, t.created_at
		FROM triggers t
		JOIN users u ON u.id = t.user_id
		WHERE u.telegram_id = $1
		ORDER BY t.id ASC`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []models.Trigger
	for rows.Next() {
		var t models.Trigger
		if err := rows.Scan(&t.ID, &t.UserID, &t.Phrase, &t.ReplyBody, &t.Active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read triggers: %w", err)
	}
	return triggers, nil
}

// Create inserts a trigger for the user, enforcing normalization, per-user
// uniqueness, and the plan cap. The user row is locked for the duration so
// trigger_count stays consistent under concurrent creates.
func (s *TriggerService) Create(ctx context.Context, telegramID int64, phrase, replyBody string) (*models.Trigger, error) {
	phrase = NormalizePhrase(phrase)
	if len([]rune(phrase)) < 2 {
		return nil, NewValidationError("phrase", "must be at least 2 characters")
	}
	if replyBody == "" {
		return nil, NewValidationError("reply_body", "required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		userID       int64
		plan         models.Plan
		expired      bool
		triggerCount int
	)
	err = tx.QueryRow(ctx, `
		SELECT id, plan,
		       plan_expires_at IS NOT NULL AND plan_expires_at <= now(),
		       trigger_count
		FROM users WHERE telegram_id = $1
		FOR UPDATE`, telegramID).Scan(&userID, &plan, &expired, &triggerCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user for trigger create: %w", err)
	}

	if limit := plan.TriggerLimit(expired); triggerCount >= limit {
		return nil, fmt.Errorf("%w: plan %s allows %d", ErrTriggerLimit, plan, limit)
	}

	var t models.Trigger
	err = tx.QueryRow(ctx, `
		INSERT INTO triggers (user_id, phrase, reply_body, active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, user_id, phrase, reply_body, active, created_at`,
		userID, phrase, replyBody,
	).Scan(&t.ID, &t.UserID, &t.Phrase, &t.ReplyBody, &t.Active, &t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert trigger: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET trigger_count = trigger_count + 1 WHERE id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to bump trigger count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit trigger create: %w", err)
	}
	return &t, nil
}

// Delete removes one of the user's triggers and decrements the count. The
// delete is scoped to the owner; a trigger belonging to a different user is
// reported as not found rather than revealing its existence.
func (s *TriggerService) Delete(ctx context.Context, telegramID, triggerID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID int64
	err = tx.QueryRow(ctx, `
		DELETE FROM triggers t
		USING users u
		WHERE t.id = $1 AND u.id = t.user_id AND u.telegram_id = $2
		RETURNING t.user_id`, triggerID, telegramID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET trigger_count = GREATEST(trigger_count - 1, 0)
		WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to decrement trigger count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit trigger delete: %w", err)
	}
	return nil
}

// LimitInfo reports the cap, the current count, and whether another trigger
// may be created.
type LimitInfo struct {
	TelegramID   int64       `json:"telegram_id"`
	Plan         models.Plan `json:"plan"`
	Limit        int         `json:"limit"`
	CurrentCount int         `json:"current_count"`
	Remaining    int         `json:"remaining"`
	CanCreate    bool        `json:"can_create"`
}

// Limit returns the plan-cap status for the user.
func (s *TriggerService) Limit(ctx context.Context, telegramID int64) (*LimitInfo, error) {
	var (
		info    LimitInfo
		expired bool
	)
	err := s.pool.QueryRow(ctx, `
		SELECT telegram_id, plan,
		       plan_expires_at IS NOT NULL AND plan_expires_at <= now(),
		       trigger_count
		FROM users WHERE telegram_id = $1`, telegramID,
	).Scan(&info.TelegramID, &info.Plan, &expired, &info.CurrentCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load trigger limit: %w", err)
	}

	info.Limit = info.Plan.TriggerLimit(expired)
	info.Remaining = max(info.Limit-info.CurrentCount, 0)
	info.CanCreate = info.CurrentCount < info.Limit
	return &info, nil
}
