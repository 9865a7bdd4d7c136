// Package dto defines request and response payloads for the HTTP API.
package dto

import (
	"time"

	"github.com/apodmail/apodmail/internal/model"
)

// SignupRequest is the payload for POST /signup.
type SignupRequest struct {
	Email string `json:"email"`
	Notes string `json:"notes,omitempty"`
}

// MessageResponse is a human-readable outcome for the public endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// SubscriberResponse is the API representation of a subscriber.
type SubscriberResponse struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	SignupAt time.Time `json:"signup_at"`
}

// SubscriberListResponse wraps a subscriber range query result.
type SubscriberListResponse struct {
	Subscribers []*SubscriberResponse `json:"subscribers"`
	Count       int                   `json:"count"`
}

// CountResponse is the payload for GET /usercount.
type CountResponse struct {
	Count int64 `json:"count"`
}

// StatsResponse is the payload for the stats endpoints. Generated is false
// when stats have never been computed.
type StatsResponse struct {
	Generated   bool       `json:"generated"`
	Labels      []string   `json:"labels"`
	Data        []int64    `json:"data"`
	Total       int64      `json:"total"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// DigestResponse reports a digest dispatch run.
type DigestResponse struct {
	Enqueued int `json:"enqueued"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ToSubscriberResponse converts a subscriber model to its API shape.
func ToSubscriberResponse(sub *model.Subscriber) *SubscriberResponse {
	return &SubscriberResponse{
		ID:       sub.ID,
		Email:    sub.Email,
		SignupAt: sub.SignupAt,
	}
}

// ToSubscriberListResponse converts a subscriber slice to its API shape.
func ToSubscriberListResponse(subs []*model.Subscriber) *SubscriberListResponse {
	out := make([]*SubscriberResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, ToSubscriberResponse(sub))
	}
	return &SubscriberListResponse{
		Subscribers: out,
		Count:       len(out),
	}
}

// ToStatsResponse converts a stats payload to its API shape.
func ToStatsResponse(payload *model.StatsPayload) *StatsResponse {
	generatedAt := payload.GeneratedAt
	return &StatsResponse{
		Generated:   true,
		Labels:      payload.Labels,
		Data:        payload.Data,
		Total:       payload.Total,
		GeneratedAt: &generatedAt,
	}
}
