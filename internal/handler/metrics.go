package handler

import (
	"fmt"
	"net/http"

	"github.com/apodmail/apodmail/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "apodmail_signups_total %d\n", snap.Signups)
	writeMetric(w, "apodmail_signups_duplicate_total %d\n", snap.DuplicateSignups)
	writeMetric(w, "apodmail_unsubscribes_total{status=\"removed\"} %d\n", snap.UnsubscribeRemoved)
	writeMetric(w, "apodmail_unsubscribes_total{status=\"not_found\"} %d\n", snap.UnsubscribeNotFound)

	writeMetric(w, "apodmail_stats_generated_total %d\n", snap.StatsGenerated)
	writeMetric(w, "apodmail_stats_generation_seconds_sum %.6f\n", float64(snap.StatsDurationNs)/1e9)

	writeMetric(w, "apodmail_digest_runs_total %d\n", snap.DigestRuns)
	writeMetric(w, "apodmail_digest_recipients_total %d\n", snap.DigestRecipients)
	writeMetric(w, "apodmail_emails_enqueued_total{status=\"success\"} %d\n", snap.EmailsEnqueued)
	writeMetric(w, "apodmail_emails_enqueued_total{status=\"dropped\"} %d\n", snap.EmailsDropped)
	writeMetric(w, "apodmail_emails_delivered_total{status=\"success\"} %d\n", snap.EmailsDelivered)
	writeMetric(w, "apodmail_emails_delivered_total{status=\"failed\"} %d\n", snap.EmailsFailed)
	writeMetric(w, "apodmail_mail_queue_depth %d\n", snap.MailQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
