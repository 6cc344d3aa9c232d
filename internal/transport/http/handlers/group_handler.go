package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
	"github.com/vedran77/relay/pkg/validator"
)

type GroupHandler struct {
	groupService *service.GroupService
}

func NewGroupHandler(groupService *service.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateGroupInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	title := ""
	if input.Title != nil {
		title = *input.Title
	}
	memberIDs := make([]string, len(input.MemberIDs))
	for i, id := range input.MemberIDs {
		memberIDs[i] = id.String()
	}
	if errs := validator.ValidateGroup(title, memberIDs); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	conv, err := h.groupService.Create(r.Context(), userID, input)
	if err != nil {
		if errors.Is(err, service.ErrTooFewMembers) {
			writeError(w, http.StatusBadRequest, "TOO_FEW_MEMBERS", "A group needs at least one other member")
		} else {
			log.Printf("ERROR create group: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input struct {
		UserIDs []uuid.UUID `json:"user_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if len(input.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "NO_MEMBERS", "At least one user is required")
		return
	}

	if err := h.groupService.AddMembers(r.Context(), userID, conversationID, input.UserIDs); err != nil {
		h.writeGroupError(w, "add members", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *GroupHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, targetID, ok := groupMemberIDs(w, r)
	if !ok {
		return
	}

	var input struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.groupService.UpdateMemberRole(r.Context(), userID, conversationID, targetID, input.Role); err != nil {
		h.writeGroupError(w, "update member role", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *GroupHandler) SetMemberMuted(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, targetID, ok := groupMemberIDs(w, r)
	if !ok {
		return
	}

	var input struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.groupService.SetMemberMuted(r.Context(), userID, conversationID, targetID, input.Muted); err != nil {
		h.writeGroupError(w, "set member muted", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, targetID, ok := groupMemberIDs(w, r)
	if !ok {
		return
	}

	if err := h.groupService.RemoveMember(r.Context(), userID, conversationID, targetID); err != nil {
		h.writeGroupError(w, "remove member", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *GroupHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, targetID, ok := groupMemberIDs(w, r)
	if !ok {
		return
	}

	if err := h.groupService.TransferOwnership(r.Context(), userID, conversationID, targetID); err != nil {
		h.writeGroupError(w, "transfer ownership", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	if err := h.groupService.Leave(r.Context(), userID, conversationID); err != nil {
		h.writeGroupError(w, "leave group", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *GroupHandler) Dissolve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	if err := h.groupService.Dissolve(r.Context(), userID, conversationID); err != nil {
		h.writeGroupError(w, "dissolve group", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *GroupHandler) UpdateInfo(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input struct {
		Title     *string `json:"title,omitempty"`
		AvatarURL *string `json:"avatar_url,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.groupService.UpdateInfo(r.Context(), userID, conversationID, input.Title, input.AvatarURL); err != nil {
		h.writeGroupError(w, "update group info", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func groupMemberIDs(w http.ResponseWriter, r *http.Request) (conversationID, targetID uuid.UUID, ok bool) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return uuid.Nil, uuid.Nil, false
	}
	targetID, err = uuid.Parse(r.PathValue("uid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return uuid.Nil, uuid.Nil, false
	}
	return conversationID, targetID, true
}

func (h *GroupHandler) writeGroupError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrNotAGroup):
		writeError(w, http.StatusBadRequest, "NOT_A_GROUP", "This is not a group conversation")
	case errors.Is(err, service.ErrNotAMember):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a member of this group")
	case errors.Is(err, service.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "MEMBER_NOT_FOUND", "User is not a member of this group")
	case errors.Is(err, service.ErrInsufficientRole):
		writeError(w, http.StatusForbidden, "INSUFFICIENT_ROLE", "Your role does not allow this action")
	case errors.Is(err, service.ErrOwnerImmutable):
		writeError(w, http.StatusForbidden, "OWNER_IMMUTABLE", "The owner cannot be changed this way")
	case errors.Is(err, service.ErrOwnerCannotLeave):
		writeError(w, http.StatusForbidden, "OWNER_CANT_LEAVE", "Transfer ownership or dissolve the group first")
	case errors.Is(err, service.ErrRoleUnchanged):
		writeError(w, http.StatusConflict, "ROLE_UNCHANGED", "Member already has that role")
	case errors.Is(err, service.ErrMuteUnchanged):
		writeError(w, http.StatusConflict, "MUTE_UNCHANGED", "Member already has that send permission")
	case errors.Is(err, service.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "INVALID_ROLE", "Role must be admin or member")
	case errors.Is(err, service.ErrSelfRelation):
		writeError(w, http.StatusBadRequest, "SELF_TARGET", "You cannot target yourself")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
