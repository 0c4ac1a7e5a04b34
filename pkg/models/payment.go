package models

import "time"

// PaymentStatus is the state of a payment record.
type PaymentStatus string

// Payment status constants.
const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentCanceled PaymentStatus = "canceled"
)

// Payment is an informational billing record. Marking a payment paid never
// upgrades the plan by itself; plan changes are an operator action.
type Payment struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	Plan      Plan          `json:"plan"`
	Amount    int           `json:"amount"`
	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
