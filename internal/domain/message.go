package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVideo = "video"
)

type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Type           string     `json:"type"`
	Text           *string    `json:"text,omitempty"`
	AssetURL       *string    `json:"asset_url,omitempty"`
	ReplyToID      *uuid.UUID `json:"reply_to_id,omitempty"`
	ReplyToNote    *NoteSnapshot `json:"reply_to_note,omitempty"`
	IsPinned       bool       `json:"is_pinned"`
	IsForwarded    bool       `json:"is_forwarded"`
	// DeletedAt marks a revoked message. The row stays so replies and
	// reactions keep a valid target; clients render a tombstone.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	// Joined fields
	SenderDisplayName string     `json:"sender_display_name,omitempty"`
	SenderAvatarURL   *string    `json:"sender_avatar_url,omitempty"`
	Reactions         []Reaction `json:"reactions"`
	ReadBy            []uuid.UUID `json:"read_by"`
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Reaction is a single-slot value per (message, user): one emoji at a time,
// last write wins, reselecting the same emoji clears it.
type Reaction struct {
	MessageID uuid.UUID `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	// Joined fields
	DisplayName string `json:"display_name,omitempty"`
}

// NoteSnapshot is a point-in-time copy of an ephemeral note captured when a
// reply targets it. Notes expire, so the reply keeps the copy, never a
// reference.
type NoteSnapshot struct {
	NoteID            uuid.UUID `json:"note_id"`
	Text              string    `json:"text"`
	OwnerID           uuid.UUID `json:"owner_id"`
	OwnerDisplayName  string    `json:"owner_display_name"`
	ExpiresAt         time.Time `json:"expires_at"`
}
