// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Subscription metrics
	IncSignup()
	IncDuplicateSignup()
	IncUnsubscribe(status string) // status: "removed" or "not_found"

	// Stats pipeline metrics
	IncStatsGenerated()
	ObserveStatsGeneration(duration time.Duration)

	// Mail fan-out metrics
	ObserveDigestFanOut(recipients int)
	IncEmailEnqueued(status string)  // status: "success" or "dropped"
	IncEmailDelivered(status string) // status: "success", "failed", "skipped"
	SetMailQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
