package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/apodmail/apodmail/internal/handler/dto"
	"github.com/apodmail/apodmail/internal/service"
)

// SubscriptionHandler handles HTTP requests for signup and unsubscribe.
type SubscriptionHandler struct {
	svc    *service.SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(svc *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		svc:    svc,
		logger: logger,
	}
}

// Signup handles POST /signup.
// Accepts both JSON and form-encoded bodies; the public signup form posts
// the latter.
func (h *SubscriptionHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
			return
		}
		req.Email = r.PostFormValue("email")
		req.Notes = r.PostFormValue("notes")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
			return
		}
	}

	sub, err := h.svc.Signup(r.Context(), service.SignupInput{
		Email: req.Email,
		Notes: req.Notes,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("subscriber_created",
		"subscriber_id", sub.ID,
		"signup_month", sub.SignupAt.Format("2006-01"),
	)

	writeJSON(w, http.StatusCreated, dto.MessageResponse{
		Message: "Thank you for subscribing to the Astronomy Picture of the Day!",
	})
}

// Unsubscribe handles GET /unsubscribe?email=...
// A GET because the link lives in an email body.
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	if err := h.svc.Unsubscribe(r.Context(), email); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("subscriber_removed")

	writeJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "You have been unsubscribed. Sorry to see you go!",
	})
}

// Count handles GET /usercount.
func (h *SubscriptionHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.Count(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CountResponse{Count: count})
}

// ListByRange handles GET /subscribers?year=&start_month=&end_month=.
// All three parameters are required; unbounded listing is not offered.
func (h *SubscriptionHandler) ListByRange(w http.ResponseWriter, r *http.Request) {
	input, ok := h.parseMonthRange(w,
		r.URL.Query().Get("year"),
		r.URL.Query().Get("start_month"),
		r.URL.Query().Get("end_month"),
	)
	if !ok {
		return
	}

	subs, err := h.svc.SubscribersInMonthRange(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSubscriberListResponse(subs))
}

// parseMonthRange converts raw year/month strings into a range input,
// writing a 400 and returning ok=false on non-numeric values.
func (h *SubscriptionHandler) parseMonthRange(w http.ResponseWriter, year, startMonth, endMonth string) (service.MonthRangeInput, bool) {
	var input service.MonthRangeInput
	var err error

	if year != "" {
		if input.Year, err = strconv.Atoi(year); err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Year must be a number")
			return input, false
		}
	}
	if startMonth != "" {
		if input.StartMonth, err = strconv.Atoi(startMonth); err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Start month must be a number")
			return input, false
		}
	}
	if endMonth != "" {
		if input.EndMonth, err = strconv.Atoi(endMonth); err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_RANGE", "End month must be a number")
			return input, false
		}
	}

	return input, true
}

// handleServiceError maps service errors to HTTP responses.
func (h *SubscriptionHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmailRequired):
		h.writeError(w, http.StatusBadRequest, "EMAIL_REQUIRED", "Email is required")
	case errors.Is(err, service.ErrInvalidEmail):
		h.writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email format")
	case errors.Is(err, service.ErrAlreadySubscribed):
		writeJSON(w, http.StatusConflict, dto.MessageResponse{
			Message: "You are already subscribed!",
		})
	case errors.Is(err, service.ErrNotSubscribed):
		writeJSON(w, http.StatusNotFound, dto.MessageResponse{
			Message: "That email is not on the subscription list.",
		})
	case errors.Is(err, service.ErrRangeRequired):
		h.writeError(w, http.StatusBadRequest, "RANGE_REQUIRED", "Year, start month and end month are all required")
	case errors.Is(err, service.ErrInvalidMonthRange):
		h.writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Months must be 1-12 with start not after end")
	default:
		h.logger.Error("internal_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeError writes an error response.
func (h *SubscriptionHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
