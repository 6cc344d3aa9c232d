package domain

import (
	"time"

	"github.com/google/uuid"
)

// User account statuses.
const (
	UserStatusActive      = "active"
	UserStatusLocked      = "locked"
	UserStatusBanned      = "banned"
	UserStatusSelfDeleted = "self_deleted"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	Status       string    `json:"status"`
	// TokenVersion is the session epoch. Bumping it invalidates every
	// credential issued before the bump.
	TokenVersion int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
