package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
	"github.com/vedran77/relay/pkg/validator"
)

type ReportHandler struct {
	moderationService *service.ModerationService
}

func NewReportHandler(moderationService *service.ModerationService) *ReportHandler {
	return &ReportHandler{moderationService: moderationService}
}

func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateReportInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidateReport(input.TargetType, input.Reasons); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	report, err := h.moderationService.CreateReport(r.Context(), userID, input)
	if err != nil {
		log.Printf("ERROR create report: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, report)
}
