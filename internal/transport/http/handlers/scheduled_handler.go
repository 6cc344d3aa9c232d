package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type ScheduledHandler struct {
	scheduledService *service.ScheduledService
}

func NewScheduledHandler(scheduledService *service.ScheduledService) *ScheduledHandler {
	return &ScheduledHandler{scheduledService: scheduledService}
}

func (h *ScheduledHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.ScheduleMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	sm, err := h.scheduledService.Create(r.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrScheduleNoText):
			writeError(w, http.StatusBadRequest, "MISSING_TEXT", "Scheduled messages need text")
		case errors.Is(err, service.ErrScheduleInPast):
			writeError(w, http.StatusBadRequest, "SCHEDULE_IN_PAST", "Schedule time must be in the future")
		case errors.Is(err, service.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		case errors.Is(err, service.ErrNotAMember):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a member of this conversation")
		case errors.Is(err, service.ErrGroupLocked):
			writeError(w, http.StatusForbidden, "GROUP_LOCKED", "This group is locked")
		case errors.Is(err, service.ErrGroupBanned):
			writeError(w, http.StatusForbidden, "GROUP_BANNED", "This group is banned")
		default:
			log.Printf("ERROR schedule message: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, sm)
}

func (h *ScheduledHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var conversationID *uuid.UUID
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
			return
		}
		conversationID = &id
	}

	items, err := h.scheduledService.ListPending(r.Context(), userID, conversationID)
	if err != nil {
		log.Printf("ERROR list scheduled: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"scheduled": items})
}

func (h *ScheduledHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid scheduled message ID")
		return
	}

	if err := h.scheduledService.Cancel(r.Context(), id, userID); err != nil {
		if errors.Is(err, service.ErrScheduledNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Scheduled message not found")
		} else {
			log.Printf("ERROR cancel scheduled: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ScheduledHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid scheduled message ID")
		return
	}

	var input struct {
		ScheduleAt time.Time `json:"schedule_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.scheduledService.Reschedule(r.Context(), id, userID, input.ScheduleAt); err != nil {
		switch {
		case errors.Is(err, service.ErrScheduledNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Scheduled message not found")
		case errors.Is(err, service.ErrScheduleInPast):
			writeError(w, http.StatusBadRequest, "SCHEDULE_IN_PAST", "Schedule time must be in the future")
		default:
			log.Printf("ERROR reschedule: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SendNow promotes the scheduled message immediately with the same guards
// the sweep applies.
func (h *ScheduledHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid scheduled message ID")
		return
	}

	msg, err := h.scheduledService.SendNow(r.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrScheduledNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Scheduled message not found")
		case errors.Is(err, service.ErrNotAMember):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You are no longer a member of this conversation")
		case errors.Is(err, service.ErrGroupLocked):
			writeError(w, http.StatusForbidden, "GROUP_LOCKED", "This group is locked")
		case errors.Is(err, service.ErrGroupBanned):
			writeError(w, http.StatusForbidden, "GROUP_BANNED", "This group is banned")
		case errors.Is(err, service.ErrSenderMuted):
			writeError(w, http.StatusForbidden, "MUTED", "You are muted in this group")
		default:
			log.Printf("ERROR send scheduled now: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
