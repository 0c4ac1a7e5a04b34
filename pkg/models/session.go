package models

import "time"

// Session holds the long-lived chat-platform token for one user (1:1).
// It is a separate record so it can be deleted on revocation without
// touching the user's identity; deletion cascades with the user.
type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	TelegramID   int64     `json:"telegram_id"`
	SessionToken string    `json:"session_string"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
