package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type AdminHandler struct {
	moderationService *service.ModerationService
}

func NewAdminHandler(moderationService *service.ModerationService) *AdminHandler {
	return &AdminHandler{moderationService: moderationService}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	users, total, err := h.moderationService.ListUsers(r.Context(), q.Get("status"), q.Get("q"), limit, offset)
	if err != nil {
		log.Printf("ERROR list users: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users, "total": total})
}

func (h *AdminHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	groups, total, err := h.moderationService.ListGroups(r.Context(), q.Get("status"), q.Get("q"), limit, offset)
	if err != nil {
		log.Printf("ERROR list groups: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "total": total})
}

func (h *AdminHandler) GroupMembers(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	members, err := h.moderationService.GroupMembers(r.Context(), conversationID)
	if err != nil {
		h.writeModerationError(w, "group members", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.moderationService.Stats(r.Context())
	if err != nil {
		log.Printf("ERROR admin stats: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	reports, total, err := h.moderationService.ListReports(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		log.Printf("ERROR list reports: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports, "total": total})
}

func (h *AdminHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid report ID")
		return
	}

	report, err := h.moderationService.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Report not found")
		} else {
			log.Printf("ERROR get report: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) ResolveReport(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	reportID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid report ID")
		return
	}

	var body struct {
		Action string  `json:"action"`
		Reject bool    `json:"reject"`
		Note   *string `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	action, ok := parseAction(body.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ACTION", "Unknown moderation action")
		return
	}

	report, err := h.moderationService.ResolveReport(r.Context(), adminID, reportID, service.ResolveReportInput{
		Action: action,
		Reject: body.Reject,
		Note:   body.Note,
	})
	if err != nil {
		h.writeModerationError(w, "resolve report", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	targetID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	var input struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	user, err := h.moderationService.SetUserStatus(r.Context(), adminID, targetID, input.Status)
	if err != nil {
		h.writeModerationError(w, "set user status", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) SetGroupStatus(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	conv, err := h.moderationService.SetGroupStatus(r.Context(), conversationID, input.Status)
	if err != nil {
		h.writeModerationError(w, "set group status", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// parseAction maps the wire action names to their typed service variants.
func parseAction(name string) (service.ModerationAction, bool) {
	switch name {
	case "", "none":
		return nil, true
	case "warn":
		return service.Warn{}, true
	case "lock_user":
		return service.UserSanction{Status: domain.UserStatusLocked}, true
	case "ban_user":
		return service.UserSanction{Status: domain.UserStatusBanned}, true
	case "unlock_user":
		return service.UserSanction{Status: domain.UserStatusActive}, true
	case "lock_group":
		return service.GroupSanction{Status: domain.ConversationStatusLocked}, true
	case "ban_group":
		return service.GroupSanction{Status: domain.ConversationStatusBanned}, true
	case "unlock_group":
		return service.GroupSanction{Status: domain.ConversationStatusActive}, true
	case "remove_content":
		return service.ContentRemoval{}, true
	default:
		return nil, false
	}
}

func (h *AdminHandler) writeModerationError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Report not found")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrReportTerminal):
		writeError(w, http.StatusConflict, "ALREADY_RESOLVED", "This report was already settled")
	case errors.Is(err, service.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", "Status must be active, locked or banned")
	case errors.Is(err, service.ErrInvalidReport):
		writeError(w, http.StatusBadRequest, "INVALID_ACTION", "This action does not apply to the report's target")
	case errors.Is(err, service.ErrNoSanctionTarget):
		writeError(w, http.StatusBadRequest, "NO_TARGET", "The report has no user to sanction")
	case errors.Is(err, service.ErrCannotSanctionAdmin):
		writeError(w, http.StatusForbidden, "TARGET_IS_ADMIN", "Admin accounts cannot be sanctioned")
	case errors.Is(err, service.ErrCannotSanctionSelf):
		writeError(w, http.StatusForbidden, "SELF_SANCTION", "You cannot sanction your own account")
	case errors.Is(err, service.ErrNotAGroup):
		writeError(w, http.StatusBadRequest, "NOT_A_GROUP", "This is not a group conversation")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
