package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apodmail/apodmail/internal/email"
	"github.com/apodmail/apodmail/internal/handler/dto"
	"github.com/apodmail/apodmail/internal/model"
	"github.com/apodmail/apodmail/internal/service"
	"github.com/apodmail/apodmail/internal/store"
)

type fakeSource struct{}

func (fakeSource) Fetch(ctx context.Context, date time.Time) (*model.APOD, error) {
	return &model.APOD{
		Title:       "Test Nebula",
		Explanation: "A test nebula.",
		Date:        date.Format("2006-01-02"),
		MediaURL:    "https://apod.nasa.gov/apod/image/test.jpg",
		MediaType:   model.MediaImage,
	}, nil
}

type collectingDispatcher struct {
	tasks []model.EmailTask
}

func (d *collectingDispatcher) Dispatch(ctx context.Context, task model.EmailTask) error {
	d.tasks = append(d.tasks, task)
	return nil
}

func TestDigestEnqueueDaily(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	march := time.Date(2023, time.March, 10, 9, 0, 0, 0, time.UTC)
	august := time.Date(2023, time.August, 10, 9, 0, 0, 0, time.UTC)
	for _, s := range []struct {
		email string
		at    time.Time
	}{
		{"in-range-1@example.com", march},
		{"in-range-2@example.com", march.AddDate(0, 1, 0)},
		{"out-of-range@example.com", august},
	} {
		sub := &model.Subscriber{ID: s.email, Email: s.email, SignupAt: s.at, Active: true}
		if err := mem.CreateSubscriber(ctx, sub); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	subsSvc := service.NewSubscriptionService(mem, nil)
	dispatcher := &collectingDispatcher{}
	builder := email.NewBuilder("https://apodmail.example.com", "")
	svc := service.NewDigestService(subsSvc, fakeSource{}, builder, dispatcher, nil, slog.Default())
	h := NewDigestHandler(svc, slog.Default())

	router := chi.NewRouter()
	router.Get("/dailyemail/{year}/{startMonth}/{endMonth}", h.EnqueueDaily)

	req := httptest.NewRequest(http.MethodGet, "/dailyemail/2023/3/4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.DigestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Enqueued != 2 {
		t.Errorf("enqueued = %d, want 2", resp.Enqueued)
	}
	if len(dispatcher.tasks) != 2 {
		t.Fatalf("dispatched tasks = %d, want 2", len(dispatcher.tasks))
	}

	for _, task := range dispatcher.tasks {
		if !strings.Contains(task.Subject, "Test Nebula") {
			t.Errorf("subject %q missing title", task.Subject)
		}
		if !strings.Contains(task.Body, "unsubscribe") {
			t.Errorf("body for %s missing unsubscribe link", task.Recipient)
		}
		if strings.Contains(task.Body, "{{email}}") {
			t.Errorf("body for %s not personalized", task.Recipient)
		}
	}
}

func TestDigestEnqueueDaily_BadPath(t *testing.T) {
	h := NewDigestHandler(nil, slog.Default())

	router := chi.NewRouter()
	router.Get("/dailyemail/{year}/{startMonth}/{endMonth}", h.EnqueueDaily)

	req := httptest.NewRequest(http.MethodGet, "/dailyemail/abc/3/4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
