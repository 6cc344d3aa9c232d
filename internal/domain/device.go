package domain

import (
	"time"

	"github.com/google/uuid"
)

// Device is a registered push destination. A user has at most one active
// device; registering a new one displaces the old.
type Device struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Token        string    `json:"-"`
	Platform     string    `json:"platform"`
	IsActive     bool      `json:"is_active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NotificationSettings are per-user push toggles, each defaulting to on.
type NotificationSettings struct {
	UserID           uuid.UUID `json:"user_id"`
	DMPushEnabled    bool      `json:"dm_push_enabled"`
	GroupPushEnabled bool      `json:"group_push_enabled"`
	CallPushEnabled  bool      `json:"call_push_enabled"`
}
