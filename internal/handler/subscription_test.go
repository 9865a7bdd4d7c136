package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/apodmail/apodmail/internal/handler/dto"
	"github.com/apodmail/apodmail/internal/service"
	"github.com/apodmail/apodmail/internal/store"
)

func newSubscriptionHandler(t *testing.T) (*SubscriptionHandler, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemory()
	svc := service.NewSubscriptionService(mem, nil)
	return NewSubscriptionHandler(svc, slog.Default()), mem
}

func newTestRouter(h *SubscriptionHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/signup", h.Signup)
	r.Get("/unsubscribe", h.Unsubscribe)
	r.Get("/usercount", h.Count)
	r.Get("/subscribers", h.ListByRange)
	return r
}

func TestSignup_JSON(t *testing.T) {
	h, mem := newSubscriptionHandler(t)
	router := newTestRouter(h)

	body := strings.NewReader(`{"email":"alice@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/signup", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp dto.MessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Message, "Thank you") {
		t.Errorf("unexpected message: %q", resp.Message)
	}

	if _, err := mem.SubscriberByEmail(context.Background(), "alice@example.com"); err != nil {
		t.Errorf("subscriber not stored: %v", err)
	}
}

func TestSignup_Form(t *testing.T) {
	h, mem := newSubscriptionHandler(t)
	router := newTestRouter(h)

	form := url.Values{"email": {"bob@example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	if _, err := mem.SubscriberByEmail(context.Background(), "bob@example.com"); err != nil {
		t.Errorf("subscriber not stored: %v", err)
	}
}

func TestSignup_Duplicate(t *testing.T) {
	h, _ := newSubscriptionHandler(t)
	router := newTestRouter(h)

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/signup",
			strings.NewReader(`{"email":"carol@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != want {
			t.Fatalf("attempt %d: status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestSignup_InvalidEmail(t *testing.T) {
	h, _ := newSubscriptionHandler(t)
	router := newTestRouter(h)

	tests := []struct {
		name string
		body string
	}{
		{"empty email", `{"email":""}`},
		{"no at sign", `{"email":"not-an-email"}`},
		{"no domain dot", `{"email":"a@b"}`},
		{"whitespace", `{"email":"a b@example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestUnsubscribe_Flow(t *testing.T) {
	h, mem := newSubscriptionHandler(t)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/signup",
		strings.NewReader(`{"email":"dave@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/unsubscribe?email=dave@example.com", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe status = %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := mem.SubscriberByEmail(context.Background(), "dave@example.com"); err == nil {
		t.Error("subscriber still retrievable after unsubscribe")
	}

	// Second attempt reports not-found without touching counters.
	req = httptest.NewRequest(http.MethodGet, "/unsubscribe?email=dave@example.com", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat unsubscribe status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCount(t *testing.T) {
	h, _ := newSubscriptionHandler(t)
	router := newTestRouter(h)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		req := httptest.NewRequest(http.MethodPost, "/signup",
			strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("signup %s status = %d", email, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/usercount", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp dto.CountResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("count = %d, want 3", resp.Count)
	}
}

func TestListByRange_Validation(t *testing.T) {
	h, _ := newSubscriptionHandler(t)
	router := newTestRouter(h)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing all", "", http.StatusBadRequest},
		{"missing end", "?year=2023&start_month=1", http.StatusBadRequest},
		{"month out of range", "?year=2023&start_month=0&end_month=13", http.StatusBadRequest},
		{"start after end", "?year=2023&start_month=5&end_month=2", http.StatusBadRequest},
		{"non-numeric", "?year=abc&start_month=1&end_month=2", http.StatusBadRequest},
		{"valid", "?year=2023&start_month=1&end_month=12", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/subscribers"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
