package domain

import (
	"time"

	"github.com/google/uuid"
)

// Relation kinds between two users, in the precedence the ledger reports
// them: self wins over blocked, blocked over friend, and so on.
const (
	RelationSelf        = "self"
	RelationBlocked     = "blocked"
	RelationFriend      = "friend"
	RelationInvitedMe   = "invited_me"
	RelationInvitedByMe = "invited_by_me"
	RelationNone        = "none"
)

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
	InviteStatusCanceled = "canceled"
)

type Invite struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	// Joined fields
	SenderDisplayName   string  `json:"sender_display_name,omitempty"`
	SenderAvatarURL     *string `json:"sender_avatar_url,omitempty"`
	ReceiverDisplayName string  `json:"receiver_display_name,omitempty"`
	ReceiverAvatarURL   *string `json:"receiver_avatar_url,omitempty"`
}

// Relation is the answer to "how does A relate to B".
type Relation struct {
	Kind            string     `json:"kind"`
	InboundInviteID *uuid.UUID `json:"inbound_invite_id,omitempty"`
}

type Friend struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Status      string    `json:"status"`
	Since       time.Time `json:"since"`
}

// UserSearchResult is a candidate contact: not self, not already a friend,
// not blocked in either direction.
type UserSearchResult struct {
	ID              uuid.UUID  `json:"id"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"display_name"`
	AvatarURL       *string    `json:"avatar_url,omitempty"`
	InvitedByMe     bool       `json:"invited_by_me"`
	InboundInviteID *uuid.UUID `json:"inbound_invite_id,omitempty"`
}
