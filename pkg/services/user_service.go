// Package services implements the registry's persistence operations over
// PostgreSQL. All multi-row mutations run in transactions; the claim
// transaction additionally takes row locks with SKIP LOCKED to guarantee
// at-most-one ownership across the fleet.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replyfleet/replyfleet/pkg/models"
)

// DefaultStaleLease is how long a lease may go without a heartbeat before
// the claim transaction considers it stale and re-claimable.
const DefaultStaleLease = 45 * time.Second

// UserService manages user identity, session tokens, and ownership leases.
type UserService struct {
	pool       *pgxpool.Pool
	staleLease time.Duration
}

// NewUserService creates a UserService. staleLease <= 0 selects the default.
func NewUserService(pool *pgxpool.Pool, staleLease time.Duration) *UserService {
	if staleLease <= 0 {
		staleLease = DefaultStaleLease
	}
	return &UserService{pool: pool, staleLease: staleLease}
}

const userColumns = `id, telegram_id, name, username, phone, language, plan,
	plan_expires_at, is_registered, trigger_count, worker_id, worker_active,
	last_seen_at, created_at, registered_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.Name, &u.Username, &u.Phone, &u.Language,
		&u.Plan, &u.PlanExpires, &u.IsRegistered, &u.TriggerCount,
		&u.WorkerID, &u.WorkerActive, &u.LastSeenAt, &u.CreatedAt, &u.RegisteredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetByTelegramID returns the raw user record.
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	return scanUser(row)
}

// Register creates the identity record if it does not exist yet. It is
// idempotent: registering an existing user returns the stored record
// unchanged.
func (s *UserService) Register(ctx context.Context, telegramID int64, name string) (*models.User, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (telegram_id, name, plan, is_registered, worker_active)
		 VALUES ($1, $2, 'free', FALSE, FALSE)
		 ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	return s.GetByTelegramID(ctx, telegramID)
}

// Lookup returns the user view with token-authoritative flags: both
// is_registered and worker_active read as false when no session token is
// stored, even if the columns say otherwise.
func (s *UserService) Lookup(ctx context.Context, telegramID int64) (*models.UserView, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT u.telegram_id, u.name, u.username, u.phone, u.plan,
		       u.is_registered, u.worker_active, u.worker_id, u.last_seen_at,
		       COALESCE(s.session_string, ''),
		       EXISTS (
		           SELECT 1 FROM administrators a
		           WHERE a.telegram_id = u.telegram_id AND a.active
		       )
		FROM users u
		LEFT JOIN sessions s ON s.user_id = u.id
		WHERE u.telegram_id = $1`, telegramID)

	var v models.UserView
	err := row.Scan(
		&v.TelegramID, &v.Name, &v.Username, &v.Phone, &v.Plan,
		&v.IsRegistered, &v.WorkerActive, &v.WorkerID, &v.LastSeenAt,
		&v.SessionToken, &v.IsAdmin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	}

	// The token is authoritative for both effective flags.
	if v.SessionToken == "" {
		v.IsRegistered = false
		v.WorkerActive = false
	}
	return &v, nil
}

// Claim atomically hands up to limit eligible users to workerID.
//
// Eligible: registered, token present, and either unowned or holding a lease
// whose heartbeat is older than the stale threshold. Rows are locked with
// SKIP LOCKED so concurrent claims from different workers never overlap, and
// ordered by last_seen_at with NULLS FIRST so the longest-idle users are
// picked up first.
func (s *UserService) Claim(ctx context.Context, workerID string, limit int) ([]models.ClaimedUser, error) {
	if workerID == "" {
		return nil, NewValidationError("worker_id", "required")
	}
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cutoff := time.Now().Add(-s.staleLease)

	rows, err := tx.Query(ctx, `
		SELECT u.id, u.telegram_id, s.session_string
		FROM users u
		JOIN sessions s ON s.user_id = u.id
		WHERE u.is_registered = TRUE
		  AND s.session_string IS NOT NULL
		  AND ( u.worker_id IS NULL
		        OR (u.last_seen_at IS NOT NULL AND u.last_seen_at < $1) )
		  AND ( u.worker_active = FALSE OR u.worker_id IS NULL )
		ORDER BY u.last_seen_at ASC NULLS FIRST
		LIMIT $2
		FOR UPDATE OF u SKIP LOCKED`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible users: %w", err)
	}

	var ids []int64
	var claimed []models.ClaimedUser
	for rows.Next() {
		var id int64
		var c models.ClaimedUser
		if err := rows.Scan(&id, &c.TelegramID, &c.SessionToken); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan eligible user: %w", err)
		}
		ids = append(ids, id)
		claimed = append(claimed, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read eligible users: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET worker_id = $1, worker_active = TRUE
		WHERE id = ANY($2)`, workerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to assign leases: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return claimed, nil
}

// Heartbeat extends the lease for one user. Hard guard: a user without a
// stored session token cannot advertise itself as alive; the lease is
// cleared instead and ErrSessionInactive returned.
func (s *UserService) Heartbeat(ctx context.Context, telegramID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users u SET worker_active = TRUE, last_seen_at = now()
		WHERE u.telegram_id = $1
		  AND EXISTS (SELECT 1 FROM sessions s WHERE s.user_id = u.id)`,
		telegramID)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Either the user is unknown or the token is gone.
	tag, err = s.pool.Exec(ctx, `
		UPDATE users SET worker_active = FALSE, worker_id = NULL
		WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("failed to clear lease on tokenless heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return ErrSessionInactive
}

// ClearSession deletes the session token and releases the lease. Used on
// confirmed server-side revocation. is_registered is preserved so the user
// can re-link later.
func (s *UserService) ClearSession(ctx context.Context, telegramID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE users SET worker_active = FALSE, worker_id = NULL, last_seen_at = NULL
		WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM sessions WHERE telegram_id = $1`, telegramID); err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session clear: %w", err)
	}
	return nil
}

// MarkDisconnected releases the lease but keeps the session token. Used for
// graceful worker exit, not revocation.
func (s *UserService) MarkDisconnected(ctx context.Context, telegramID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET worker_active = FALSE, worker_id = NULL, last_seen_at = NULL
		WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("failed to mark disconnected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteRegistrationRequest carries the result of the interactive login
// flow: a fresh session token plus the contact details it verified.
type CompleteRegistrationRequest struct {
	TelegramID   int64   `json:"telegram_id" binding:"required"`
	Phone        string  `json:"phone" binding:"required"`
	SessionToken string  `json:"session_string" binding:"required"`
	Username     *string `json:"username"`
}

// CompleteRegistration stores (or replaces, on rotation) the session token,
// marks the user registered, and resets ownership so the next claim cycle
// can pick the user up.
func (s *UserService) CompleteRegistration(ctx context.Context, req CompleteRegistrationRequest) error {
	if req.SessionToken == "" {
		return NewValidationError("session_string", "required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID int64
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET phone = $2, username = $3,
		    is_registered = TRUE, registered_at = now(),
		    worker_id = NULL, worker_active = FALSE, last_seen_at = NULL
		WHERE telegram_id = $1
		RETURNING id`,
		req.TelegramID, req.Phone, req.Username).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to complete registration: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (user_id, telegram_id, session_string)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET session_string = EXCLUDED.session_string, updated_at = now()`,
		userID, req.TelegramID, req.SessionToken)
	if err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

// UpdatePhone records a new phone number. It does not change registration
// state.
func (s *UserService) UpdatePhone(ctx context.Context, telegramID int64, phone string) error {
	if phone == "" {
		return NewValidationError("phone", "required")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET phone = $2 WHERE telegram_id = $1`, telegramID, phone)
	if err != nil {
		return fmt.Errorf("failed to update phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseStaleLeases frees every lease whose heartbeat is older than cutoff.
// Run by the watchdog; makes a crashed worker's users claim-eligible again.
func (s *UserService) ReleaseStaleLeases(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET worker_active = FALSE, worker_id = NULL, last_seen_at = NULL
		WHERE worker_active = TRUE
		  AND last_seen_at IS NOT NULL
		  AND last_seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpirePlans downgrades non-free plans whose expiry has passed.
func (s *UserService) ExpirePlans(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET plan = 'free', plan_expires_at = NULL
		WHERE plan <> 'free'
		  AND plan_expires_at IS NOT NULL
		  AND plan_expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire plans: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("Downgraded expired plans", "count", n)
	}
	return tag.RowsAffected(), nil
}
