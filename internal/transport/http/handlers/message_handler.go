package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, conversationID, input)
	if err != nil {
		h.writeMessageError(w, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var before *uuid.UUID
	if raw := r.URL.Query().Get("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid before cursor")
			return
		}
		before = &id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resp, err := h.messageService.List(r.Context(), userID, conversationID, before, limit)
	if err != nil {
		h.writeMessageError(w, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var input struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.Emoji == "" {
		writeError(w, http.StatusBadRequest, "MISSING_EMOJI", "Emoji is required")
		return
	}

	msg, err := h.messageService.React(r.Context(), userID, messageID, input.Emoji)
	if err != nil {
		h.writeMessageError(w, "react", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Revoke tombstones the sender's own message for everyone.
func (h *MessageHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	msg, err := h.messageService.Revoke(r.Context(), userID, messageID)
	if err != nil {
		h.writeMessageError(w, "revoke message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) HardDelete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	if err := h.messageService.HardDelete(r.Context(), userID, messageID); err != nil {
		h.writeMessageError(w, "delete message", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *MessageHandler) SetPinned(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var input struct {
		Pinned bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	msg, err := h.messageService.SetPinned(r.Context(), userID, messageID, input.Pinned)
	if err != nil {
		h.writeMessageError(w, "pin message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.ForwardInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if len(input.MessageIDs) == 0 || len(input.ConversationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_IDS", "Message and conversation IDs are required")
		return
	}

	resp, err := h.messageService.Forward(r.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoForwardSources):
			writeError(w, http.StatusNotFound, "NO_SOURCES", "None of the messages can be forwarded")
		case errors.Is(err, service.ErrNoForwardTargets):
			writeError(w, http.StatusForbidden, "NO_TARGETS", "None of the conversations can receive the forward")
		default:
			h.writeMessageError(w, "forward messages", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) writeMessageError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
	case errors.Is(err, service.ErrNotAMember):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a member of this conversation")
	case errors.Is(err, service.ErrNotMessageSender):
		writeError(w, http.StatusForbidden, "NOT_SENDER", "Only the sender can do that")
	case errors.Is(err, service.ErrBlocked):
		writeError(w, http.StatusForbidden, "BLOCKED", "You have blocked this user")
	case errors.Is(err, service.ErrBlockedByPeer):
		writeError(w, http.StatusForbidden, "BLOCKED_BY_PEER", "This user has blocked you")
	case errors.Is(err, service.ErrPeerInactive):
		writeError(w, http.StatusForbidden, "PEER_INACTIVE", "This account is no longer active")
	case errors.Is(err, service.ErrGroupLocked):
		writeError(w, http.StatusForbidden, "GROUP_LOCKED", "This group is locked")
	case errors.Is(err, service.ErrGroupBanned):
		writeError(w, http.StatusForbidden, "GROUP_BANNED", "This group is banned")
	case errors.Is(err, service.ErrSenderMuted):
		writeError(w, http.StatusForbidden, "MUTED", "You are muted in this group")
	case errors.Is(err, service.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "A message needs exactly one of text or asset")
	case errors.Is(err, service.ErrReplyNotFound):
		writeError(w, http.StatusBadRequest, "REPLY_NOT_FOUND", "Reply target not found")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
