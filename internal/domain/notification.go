package domain

import (
	"time"

	"github.com/google/uuid"
)

// In-app notification kinds emitted by moderation.
const (
	NotificationReportResolved = "report_resolved"
	NotificationReportRejected = "report_rejected"
	NotificationUserLocked     = "admin_user_locked"
	NotificationUserBanned     = "admin_user_banned"
	NotificationUserUnlocked   = "admin_user_unlocked"
	NotificationFriendNote     = "new_note_from_friend"
)

type AppNotification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
