package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replyfleet/replyfleet/pkg/models"
)

// AdminService manages operator identities.
type AdminService struct {
	pool *pgxpool.Pool
}

// NewAdminService creates an AdminService.
func NewAdminService(pool *pgxpool.Pool) *AdminService {
	return &AdminService{pool: pool}
}

// IsAdmin reports whether the telegram id belongs to an active administrator.
func (s *AdminService) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	var isAdmin bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM administrators WHERE telegram_id = $1 AND active
		)`, telegramID).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return isAdmin, nil
}

// Upsert adds or re-activates an administrator.
func (s *AdminService) Upsert(ctx context.Context, telegramID int64, active bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO administrators (telegram_id, active) VALUES ($1, $2)
		ON CONFLICT (telegram_id) DO UPDATE SET active = EXCLUDED.active`,
		telegramID, active)
	if err != nil {
		return fmt.Errorf("failed to upsert administrator: %w", err)
	}
	return nil
}

// List returns all administrators.
func (s *AdminService) List(ctx context.Context) ([]models.Admin, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, telegram_id, active, created_at FROM administrators ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list administrators: %w", err)
	}
	defer rows.Close()

	var admins []models.Admin
	for rows.Next() {
		var a models.Admin
		if err := rows.Scan(&a.ID, &a.TelegramID, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan administrator: %w", err)
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}
