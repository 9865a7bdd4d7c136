package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apodmail/apodmail/internal/handler/dto"
	"github.com/apodmail/apodmail/internal/service"
)

// DigestHandler handles the daily email dispatch trigger.
type DigestHandler struct {
	svc    *service.DigestService
	logger *slog.Logger
}

// NewDigestHandler creates a new DigestHandler.
func NewDigestHandler(svc *service.DigestService, logger *slog.Logger) *DigestHandler {
	return &DigestHandler{
		svc:    svc,
		logger: logger,
	}
}

// EnqueueDaily handles GET /dailyemail/{year}/{startMonth}/{endMonth}.
// The scheduler calls this once a day with the month range to mail.
func (h *DigestHandler) EnqueueDaily(w http.ResponseWriter, r *http.Request) {
	var input service.MonthRangeInput
	params := []struct {
		name string
		dst  *int
	}{
		{"year", &input.Year},
		{"startMonth", &input.StartMonth},
		{"endMonth", &input.EndMonth},
	}
	for _, p := range params {
		raw := chi.URLParam(r, p.name)
		v, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Path segments must be numbers")
			return
		}
		*p.dst = v
	}

	enqueued, err := h.svc.EnqueueDaily(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("daily_digest_enqueued",
		"enqueued", enqueued,
		"year", input.Year,
		"start_month", input.StartMonth,
		"end_month", input.EndMonth,
	)

	writeJSON(w, http.StatusOK, dto.DigestResponse{Enqueued: enqueued})
}

// handleServiceError maps service errors to HTTP responses.
func (h *DigestHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRangeRequired):
		h.writeError(w, http.StatusBadRequest, "RANGE_REQUIRED", "Year, start month and end month are all required")
	case errors.Is(err, service.ErrInvalidMonthRange):
		h.writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Months must be 1-12 with start not after end")
	default:
		h.logger.Error("digest_failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Daily email dispatch failed")
	}
}

// writeError writes an error response.
func (h *DigestHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
