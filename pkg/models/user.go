// Package models defines the domain records shared by the registry and the
// fleet workers.
package models

import "time"

// Plan is a subscription tier. It derives the per-user trigger cap.
type Plan string

// Plan constants.
const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanPremium:
		return true
	}
	return false
}

// TriggerLimit returns the number of triggers the plan allows.
// An expired plan allows none.
func (p Plan) TriggerLimit(expired bool) int {
	if expired {
		return 0
	}
	switch p {
	case PlanPro:
		return 10
	case PlanPremium:
		return 20
	default:
		return 3
	}
}

// User is the identity and ownership record for one end user.
//
// Ownership fields form the lease: WorkerID names the owning worker process
// (nil means unowned), WorkerActive marks a live claim, LastSeenAt is the
// heartbeat timestamp the watchdog checks.
type User struct {
	ID           int64      `json:"id"`
	TelegramID   int64      `json:"telegram_id"`
	Name         string     `json:"name"`
	Username     *string    `json:"username,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Language     string     `json:"language"`
	Plan         Plan       `json:"plan"`
	PlanExpires  *time.Time `json:"plan_expires_at,omitempty"`
	IsRegistered bool       `json:"is_registered"`
	TriggerCount int        `json:"trigger_count"`
	WorkerID     *string    `json:"worker_id,omitempty"`
	WorkerActive bool       `json:"worker_active"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
}

// UserView is the read model returned by lookups. The session token is
// authoritative: IsRegistered and WorkerActive are masked to false when no
// token exists, regardless of the stored flags.
type UserView struct {
	TelegramID   int64      `json:"telegram_id"`
	Name         string     `json:"name"`
	Username     *string    `json:"username,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Plan         Plan       `json:"plan"`
	IsAdmin      bool       `json:"is_admin"`
	IsRegistered bool       `json:"is_registered"`
	WorkerActive bool       `json:"worker_active"`
	WorkerID     *string    `json:"worker_id,omitempty"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	SessionToken string     `json:"session_string,omitempty"`
}

// ClaimedUser is one lease handed to a worker by the claim transaction.
type ClaimedUser struct {
	TelegramID   int64  `json:"telegram_id"`
	SessionToken string `json:"session_string"`
}
