package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type NoteHandler struct {
	noteService *service.NoteService
}

func NewNoteHandler(noteService *service.NoteService) *NoteHandler {
	return &NoteHandler{noteService: noteService}
}

// Upsert posts or replaces the caller's 24-hour note.
func (h *NoteHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	note, err := h.noteService.Upsert(r.Context(), userID, input.Text)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoteEmpty):
			writeError(w, http.StatusBadRequest, "NOTE_EMPTY", "A note needs text")
		case errors.Is(err, service.ErrNoteTooLong):
			writeError(w, http.StatusBadRequest, "NOTE_TOO_LONG", "Note text is too long")
		default:
			log.Printf("ERROR upsert note: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	note, err := h.noteService.Mine(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrNoteNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "You have no note")
		} else {
			log.Printf("ERROR get note: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	notes, err := h.noteService.Feed(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR notes feed: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.noteService.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, service.ErrNoteNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "You have no note to delete")
		} else {
			log.Printf("ERROR delete note: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
