package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReportTargetUser         = "user"
	ReportTargetConversation = "conversation"
	ReportTargetMessage      = "message"
	ReportTargetNote         = "note"
)

// Report statuses. Resolved and rejected are terminal.
const (
	ReportStatusPending  = "pending"
	ReportStatusResolved = "resolved"
	ReportStatusRejected = "rejected"
)

type Report struct {
	ID             uuid.UUID  `json:"id"`
	ReporterID     uuid.UUID  `json:"reporter_id"`
	TargetType     string     `json:"target_type"`
	TargetID       uuid.UUID  `json:"target_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Reasons        []string   `json:"reasons"`
	Description    *string    `json:"description,omitempty"`
	Status         string     `json:"status"`
	ResolvedBy     *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote *string    `json:"resolution_note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (r *Report) IsTerminal() bool {
	return r.Status == ReportStatusResolved || r.Status == ReportStatusRejected
}
