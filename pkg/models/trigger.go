package models

import "time"

// Trigger is a per-user (phrase, reply) match rule. Phrases are stored
// normalized (lowercase, trimmed) and are unique per user.
type Trigger struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Phrase    string    `json:"phrase"`
	ReplyBody string    `json:"reply_body"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
