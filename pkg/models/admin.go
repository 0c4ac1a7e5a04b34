package models

import "time"

// Admin is an operator identity keyed by chat-platform id.
type Admin struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
