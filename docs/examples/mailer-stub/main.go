// apodmail Mailer Stub Example
//
// This is a minimal stand-in for the mailer service that the dispatch
// worker delivers to. It accepts the form-encoded send requests, logs
// them, and optionally writes each email to disk for inspection.
//
// Usage:
//   go run main.go
//   export MAILER_URL="http://localhost:9000/send"   # for the api server
//
// Set MAILER_STUB_DIR to also dump each email body to a file.
// Set MAILER_STUB_FAIL_RATE (0-100) to fail a percentage of sends and
// exercise the worker's retry and dead-letter paths.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var received atomic.Int64

func main() {
	dumpDir := os.Getenv("MAILER_STUB_DIR")
	if dumpDir != "" {
		if err := os.MkdirAll(dumpDir, 0o755); err != nil {
			log.Fatalf("create dump dir: %v", err)
		}
	}

	failRate := 0
	if v := os.Getenv("MAILER_STUB_FAIL_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			log.Fatalf("MAILER_STUB_FAIL_RATE must be 0-100, got %q", v)
		}
		failRate = n
	}

	http.HandleFunc("/send", sendHandler(dumpDir, failRate))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting mailer stub on :9000")
	log.Println("Endpoint: http://localhost:9000/send")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func sendHandler(dumpDir string, failRate int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseForm(); err != nil {
			log.Printf("Error parsing form: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		email := r.PostFormValue("email")
		subject := r.PostFormValue("subject")
		body := r.PostFormValue("body")

		if email == "" || subject == "" {
			http.Error(w, "Missing email or subject", http.StatusBadRequest)
			return
		}

		if failRate > 0 && rand.Intn(100) < failRate {
			log.Printf("✗ Simulated failure for %s", email)
			http.Error(w, "Simulated mailer failure", http.StatusInternalServerError)
			return
		}

		n := received.Add(1)
		log.Printf("✓ Email %d accepted", n)
		log.Printf("  To:      %s", email)
		log.Printf("  Subject: %s", subject)
		log.Printf("  Size:    %d bytes", len(body))

		if dumpDir != "" {
			name := fmt.Sprintf("%d-%s.html", time.Now().UnixNano(), sanitize(email))
			path := filepath.Join(dumpDir, name)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				log.Printf("Error writing %s: %v", path, err)
			} else {
				log.Printf("  Saved:   %s", path)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
	}
}

// sanitize makes an email address safe to use as a filename.
func sanitize(email string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, email)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"received": received.Load(),
	})
}
