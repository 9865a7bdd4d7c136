package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apodmail/apodmail/internal/cache"
	"github.com/apodmail/apodmail/internal/testutil"
)

func newRateLimitedHandler(t *testing.T, c *cache.Cache, rps, burst int) http.Handler {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return RateLimitIP(RateLimitConfig{
		Logger:  slog.Default(),
		Cache:   c,
		Enabled: true,
		RPS:     rps,
		Burst:   burst,
	})(next)
}

func TestRateLimitIP_Integration(t *testing.T) {
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := cache.New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer c.Close()

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	handler := newRateLimitedHandler(t, c, 1, 3)

	// The burst allows the first requests through, then the bucket is empty.
	var denied bool
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		switch rec.Code {
		case http.StatusOK:
			if denied {
				t.Fatalf("request %d allowed after a denial", i)
			}
		case http.StatusTooManyRequests:
			denied = true
			if rec.Header().Get("Retry-After") == "" {
				t.Error("429 response missing Retry-After header")
			}
		default:
			t.Fatalf("request %d: unexpected status %d", i, rec.Code)
		}
	}
	if !denied {
		t.Error("expected at least one request to be rate limited")
	}

	// A different IP has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/signup", nil)
	req.Header.Set("X-Real-IP", "203.0.113.8")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh IP status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimitIP_Disabled(t *testing.T) {
	t.Parallel()

	handler := RateLimitIP(RateLimitConfig{
		Logger:  slog.Default(),
		Enabled: false,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}
}
