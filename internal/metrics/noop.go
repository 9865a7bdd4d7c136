package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncSignup is a no-op.
func (n *NoopRecorder) IncSignup() {}

// IncDuplicateSignup is a no-op.
func (n *NoopRecorder) IncDuplicateSignup() {}

// IncUnsubscribe is a no-op.
func (n *NoopRecorder) IncUnsubscribe(status string) {}

// IncStatsGenerated is a no-op.
func (n *NoopRecorder) IncStatsGenerated() {}

// ObserveStatsGeneration is a no-op.
func (n *NoopRecorder) ObserveStatsGeneration(duration time.Duration) {}

// ObserveDigestFanOut is a no-op.
func (n *NoopRecorder) ObserveDigestFanOut(recipients int) {}

// IncEmailEnqueued is a no-op.
func (n *NoopRecorder) IncEmailEnqueued(status string) {}

// IncEmailDelivered is a no-op.
func (n *NoopRecorder) IncEmailDelivered(status string) {}

// SetMailQueueDepth is a no-op.
func (n *NoopRecorder) SetMailQueueDepth(depth int64) {}
