package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeRoomJoin  = "room:join"
	EventTypeRoomLeave = "room:leave"
	EventTypePing      = "ping"

	EventTypeCallRing         = "call:ring"
	EventTypeCallOffer        = "call:offer"
	EventTypeCallAnswer       = "call:answer"
	EventTypeCallICECandidate = "call:ice-candidate"
	EventTypeCallHangup       = "call:hangup"
)

// Event types - Server → Client
const (
	EventTypeMessageNew          = "message:new"
	EventTypeMessageUpdated      = "message:updated"
	EventTypeMessageDeleted      = "message:deleted"
	EventTypeConversationDeleted = "conversation:deleted"
	EventTypeInvitesChanged      = "contacts:invites:changed"
	EventTypeFriendsChanged      = "contacts:friends:changed"
	EventTypeCallIncoming        = "call:incoming"
	EventTypeForceLogout         = "auth:force-logout"
	EventTypePong                = "pong"
	EventTypeError               = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type RoomPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type CallRingPayload struct {
	Kind string `json:"kind"` // "audio" | "video"
}

// CallSignalPayload carries WebRTC signaling between two members. To is the
// peer the signal is addressed to; From is filled in by the server.
type CallSignalPayload struct {
	To        uuid.UUID       `json:"to"`
	From      uuid.UUID       `json:"from,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// --- Server → Client payloads ---

type MessagePayload struct {
	domain.Message
}

type MessageDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

type InvitesChangedPayload struct {
	Kind string `json:"kind"`
}

type CallIncomingPayload struct {
	CallerID uuid.UUID `json:"caller_id"`
	Kind     string    `json:"kind"`
}

type ForceLogoutPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
