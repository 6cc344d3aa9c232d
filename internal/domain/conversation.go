package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ConversationTypeDirect = "direct"
	ConversationTypeGroup  = "group"
)

// Group conversation statuses. Direct conversations are always "active";
// lock/ban semantics apply to groups only.
const (
	ConversationStatusActive = "active"
	ConversationStatusLocked = "locked"
	ConversationStatusBanned = "banned"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Title     *string   `json:"title,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationTypeGroup
}

type Membership struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Role           string     `json:"role"`
	IsMuted        bool       `json:"is_muted"`
	LastReadMsgID  *uuid.UUID `json:"last_read_msg_id,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
	// Joined fields
	DisplayName string  `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	UserStatus  string  `json:"user_status,omitempty"`
}

// GroupOverview is one row of the admin group listing.
type GroupOverview struct {
	Conversation
	MemberCount int `json:"member_count"`
}

// ConversationSummary is one row of a user's conversation list: the
// conversation plus per-viewer preview and unread state.
type ConversationSummary struct {
	Conversation
	DisplayTitle    string     `json:"display_title"`
	LastMessageText *string    `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	UnreadCount     int        `json:"unread_count"`
}
