package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Signups             uint64
	DuplicateSignups    uint64
	UnsubscribeRemoved  uint64
	UnsubscribeNotFound uint64
	StatsGenerated      uint64
	StatsDurationNs     int64
	DigestRuns          uint64
	DigestRecipients    uint64
	EmailsEnqueued      uint64
	EmailsDropped       uint64
	EmailsDelivered     uint64
	EmailsFailed        uint64
	MailQueueDepth      int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	signups             uint64
	duplicateSignups    uint64
	unsubscribeRemoved  uint64
	unsubscribeNotFound uint64
	statsGenerated      uint64
	statsDurationNs     int64
	digestRuns          uint64
	digestRecipients    uint64
	emailsEnqueued      uint64
	emailsDropped       uint64
	emailsDelivered     uint64
	emailsFailed        uint64
	mailQueueDepth      int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		Signups:             atomic.LoadUint64(&m.signups),
		DuplicateSignups:    atomic.LoadUint64(&m.duplicateSignups),
		UnsubscribeRemoved:  atomic.LoadUint64(&m.unsubscribeRemoved),
		UnsubscribeNotFound: atomic.LoadUint64(&m.unsubscribeNotFound),
		StatsGenerated:      atomic.LoadUint64(&m.statsGenerated),
		StatsDurationNs:     atomic.LoadInt64(&m.statsDurationNs),
		DigestRuns:          atomic.LoadUint64(&m.digestRuns),
		DigestRecipients:    atomic.LoadUint64(&m.digestRecipients),
		EmailsEnqueued:      atomic.LoadUint64(&m.emailsEnqueued),
		EmailsDropped:       atomic.LoadUint64(&m.emailsDropped),
		EmailsDelivered:     atomic.LoadUint64(&m.emailsDelivered),
		EmailsFailed:        atomic.LoadUint64(&m.emailsFailed),
		MailQueueDepth:      atomic.LoadInt64(&m.mailQueueDepth),
	}
}

// IncSignup increments the signup counter.
func (m *InMemoryRecorder) IncSignup() {
	atomic.AddUint64(&m.signups, 1)
}

// IncDuplicateSignup increments the duplicate signup counter.
func (m *InMemoryRecorder) IncDuplicateSignup() {
	atomic.AddUint64(&m.duplicateSignups, 1)
}

// IncUnsubscribe increments the unsubscribe counter for a status.
func (m *InMemoryRecorder) IncUnsubscribe(status string) {
	if status == "removed" {
		atomic.AddUint64(&m.unsubscribeRemoved, 1)
		return
	}
	atomic.AddUint64(&m.unsubscribeNotFound, 1)
}

// IncStatsGenerated increments the stats generation counter.
func (m *InMemoryRecorder) IncStatsGenerated() {
	atomic.AddUint64(&m.statsGenerated, 1)
}

// ObserveStatsGeneration records stats generation duration.
func (m *InMemoryRecorder) ObserveStatsGeneration(duration time.Duration) {
	atomic.AddInt64(&m.statsDurationNs, duration.Nanoseconds())
}

// ObserveDigestFanOut records one fan-out run and its recipient count.
func (m *InMemoryRecorder) ObserveDigestFanOut(recipients int) {
	atomic.AddUint64(&m.digestRuns, 1)
	atomic.AddUint64(&m.digestRecipients, uint64(recipients))
}

// IncEmailEnqueued increments the enqueue counter for a status.
func (m *InMemoryRecorder) IncEmailEnqueued(status string) {
	if status == "success" {
		atomic.AddUint64(&m.emailsEnqueued, 1)
		return
	}
	atomic.AddUint64(&m.emailsDropped, 1)
}

// IncEmailDelivered increments the delivery counter for a status.
func (m *InMemoryRecorder) IncEmailDelivered(status string) {
	if status == "success" {
		atomic.AddUint64(&m.emailsDelivered, 1)
		return
	}
	atomic.AddUint64(&m.emailsFailed, 1)
}

// SetMailQueueDepth records the mail queue depth.
func (m *InMemoryRecorder) SetMailQueueDepth(depth int64) {
	atomic.StoreInt64(&m.mailQueueDepth, depth)
}
