package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apodmail/apodmail/internal/auth"
)

const (
	// minAuthDuration is the minimum time to spend on auth to prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond

	// cronHeader is set by the scheduler fronting the service; the proxy
	// strips it from external traffic.
	cronHeader = "X-Appengine-Cron"
)

// AdminAuthConfig holds configuration for the admin auth middleware.
type AdminAuthConfig struct {
	Logger *slog.Logger

	// KeyHash is the Argon2id hash of the admin key. Empty disables
	// key auth entirely, leaving only the cron header.
	KeyHash string

	// TrustCronHeader allows requests carrying the scheduler header
	// through without a key. Only safe behind a proxy that strips it.
	TrustCronHeader bool
}

// AdminAuth returns a middleware that gates operator endpoints.
// A request passes with either the scheduler's cron header (when trusted)
// or a valid admin key in the Authorization header.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.TrustCronHeader && r.Header.Get(cronHeader) == "true" {
				cfg.Logger.Info("cron request authorized",
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()

			// Ensure consistent timing regardless of outcome
			defer func() {
				elapsed := time.Since(startTime)
				if elapsed < minAuthDuration {
					time.Sleep(minAuthDuration - elapsed)
				}
			}()

			key := extractAdminKey(r)
			if key == "" || cfg.KeyHash == "" {
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", "missing_key"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			if !auth.ValidateKeyFormat(key) {
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", "invalid_format"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			match, err := auth.VerifyKey(key, cfg.KeyHash)
			if err != nil || !match {
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", "invalid_key"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			cfg.Logger.Info("admin authentication successful",
				slog.String("ip", r.RemoteAddr),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			next.ServeHTTP(w, r)
		})
	}
}

// extractAdminKey extracts the admin key from the request.
// Supports both "Authorization: Bearer <key>" and "X-Admin-Key: <key>" headers.
func extractAdminKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	return r.Header.Get("X-Admin-Key")
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Invalid or missing admin key","code":"UNAUTHORIZED"}`))
}
