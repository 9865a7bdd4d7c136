package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/apodmail/apodmail/internal/handler/dto"
	"github.com/apodmail/apodmail/internal/service"
)

// StatsHandler handles HTTP requests for the signup statistics.
type StatsHandler struct {
	svc    *service.StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(svc *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		svc:    svc,
		logger: logger,
	}
}

// Get handles GET /stats.
// Serves the last generated payload; never recomputes. A missing payload is
// reported as generated:false with a 200, not an error.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	payload, err := h.svc.Cached(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrStatsNotGenerated) {
			writeJSON(w, http.StatusOK, dto.StatsResponse{Generated: false})
			return
		}
		h.logger.Error("internal_error", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{
			Error: "An internal error occurred",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	writeJSON(w, http.StatusOK, dto.ToStatsResponse(payload))
}

// Generate handles POST /stats/generate.
func (h *StatsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	payload, err := h.svc.Generate(r.Context())
	if err != nil {
		h.logger.Error("stats_generation_failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Stats generation failed",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	h.logger.Info("stats_generated",
		"months", len(payload.Labels),
		"total", payload.Total,
	)

	writeJSON(w, http.StatusOK, dto.ToStatsResponse(payload))
}
