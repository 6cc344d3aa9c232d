package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
	"github.com/vedran77/relay/pkg/validator"
)

type ConversationHandler struct {
	convService *service.ConversationService
}

func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// OpenDirect returns the direct conversation with the peer, creating it on
// first contact. Repeated calls return the same conversation.
func (h *ConversationHandler) OpenDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	conv, err := h.convService.OpenDirect(r.Context(), userID, input.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfRelation):
			writeError(w, http.StatusBadRequest, "SELF_CHAT", "You cannot open a chat with yourself")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		default:
			log.Printf("ERROR open direct: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summaries, err := h.convService.List(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR list conversations: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (h *ConversationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	members, err := h.convService.ListMembers(r.Context(), userID, conversationID)
	if err != nil {
		h.writeConvError(w, "list members", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.pointerOp(w, r, "mark read", h.convService.MarkRead)
}

func (h *ConversationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.pointerOp(w, r, "mark unread", h.convService.MarkUnread)
}

func (h *ConversationHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.pointerOp(w, r, "clear history", h.convService.ClearHistory)
}

func (h *ConversationHandler) Hide(w http.ResponseWriter, r *http.Request) {
	h.pointerOp(w, r, "hide conversation", h.convService.Hide)
}

func (h *ConversationHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	h.pointerOp(w, r, "unhide conversation", h.convService.Unhide)
}

// ListHidden takes the PIN in the body so it never lands in access logs.
func (h *ConversationHandler) ListHidden(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	summaries, err := h.convService.ListHidden(r.Context(), userID, input.PIN)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPINNotSet):
			writeError(w, http.StatusBadRequest, "PIN_NOT_SET", "No hidden chat PIN is set")
		case errors.Is(err, service.ErrPINMismatch):
			writeError(w, http.StatusForbidden, "PIN_MISMATCH", "Wrong PIN")
		default:
			log.Printf("ERROR list hidden: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (h *ConversationHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidatePIN(input.PIN); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	if err := h.convService.SetPIN(r.Context(), userID, input.PIN); err != nil {
		log.Printf("ERROR set pin: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// WipeHidden is the emergency exit: clears history for every hidden chat,
// unhides them and drops the PIN.
func (h *ConversationHandler) WipeHidden(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.convService.WipeHidden(r.Context(), userID); err != nil {
		if errors.Is(err, service.ErrNoHiddenChats) {
			writeError(w, http.StatusNotFound, "NO_HIDDEN_CHATS", "There are no hidden conversations")
		} else {
			log.Printf("ERROR wipe hidden: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// pointerOp handles the per-conversation ops that share the same shape:
// path ID, membership-gated service call, ok response.
func (h *ConversationHandler) pointerOp(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID, conversationID uuid.UUID) error) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	if err := fn(r.Context(), userID, conversationID); err != nil {
		h.writeConvError(w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ConversationHandler) writeConvError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrNotAMember):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a member of this conversation")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
