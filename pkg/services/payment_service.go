package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replyfleet/replyfleet/pkg/models"
)

// PaymentService records payments. Payments are informational: marking one
// paid never changes the user's plan by itself.
type PaymentService struct {
	pool *pgxpool.Pool
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(pool *pgxpool.Pool) *PaymentService {
	return &PaymentService{pool: pool}
}

// Create records a pending payment for the user.
func (s *PaymentService) Create(ctx context.Context, telegramID int64, plan models.Plan, amount int) (*models.Payment, error) {
	if !plan.Valid() {
		return nil, NewValidationError("plan", "unknown plan")
	}
	if amount <= 0 {
		return nil, NewValidationError("amount", "must be positive")
	}

	var p models.Payment
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payments (user_id, plan, amount, status)
		SELECT id, $2, $3, 'pending' FROM users WHERE telegram_id = $1
		RETURNING id, user_id, plan, amount, status, created_at`,
		telegramID, plan, amount,
	).Scan(&p.ID, &p.UserID, &p.Plan, &p.Amount, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return &p, nil
}

// UpdateStatus moves a payment to paid or canceled.
func (s *PaymentService) UpdateStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	switch status {
	case models.PaymentPaid, models.PaymentCanceled, models.PaymentPending:
	default:
		return NewValidationError("status", "unknown status")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments SET status = $2 WHERE id = $1`, paymentID, status)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTelegramID returns the user's payments, newest first.
func (s *PaymentService) ListByTelegramID(ctx context.Context, telegramID int64) ([]models.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.user_id, p.plan, p.amount, p.status, p.created_at
		FROM payments p
		JOIN users u ON u.id = p.user_id
		WHERE u.telegram_id = $1
		ORDER BY p.id DESC`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Plan, &p.Amount, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
