package domain

import (
	"time"

	"github.com/google/uuid"
)

// Note is a 24-hour status post: one live note per user, visible to
// friends, also a reply and moderation target.
type Note struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// Joined fields
	OwnerDisplayName string `json:"owner_display_name,omitempty"`
}

func (n *Note) Snapshot() *NoteSnapshot {
	return &NoteSnapshot{
		NoteID:           n.ID,
		Text:             n.Text,
		OwnerID:          n.OwnerID,
		OwnerDisplayName: n.OwnerDisplayName,
		ExpiresAt:        n.ExpiresAt,
	}
}
