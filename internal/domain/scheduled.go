package domain

import (
	"time"

	"github.com/google/uuid"
)

// Scheduled message statuses. The lifecycle is pending → sent or
// pending → canceled, exactly once, never back.
const (
	ScheduledStatusPending  = "pending"
	ScheduledStatusSent     = "sent"
	ScheduledStatusCanceled = "canceled"
)

type ScheduledMessage struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	Text           *string       `json:"text,omitempty"`
	AssetURL       *string       `json:"asset_url,omitempty"`
	ReplyToID      *uuid.UUID    `json:"reply_to_id,omitempty"`
	ReplyToNote    *NoteSnapshot `json:"reply_to_note,omitempty"`
	ScheduleAt     time.Time     `json:"schedule_at"`
	Status         string        `json:"status"`
	SentMessageID  *uuid.UUID    `json:"sent_message_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
