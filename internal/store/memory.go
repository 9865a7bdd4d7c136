package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/apodmail/apodmail/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and local
// development. It mirrors the transactional semantics of PostgresStore: a
// record mutation and its counter delta are applied under one lock, so
// observers never see one without the other.
type MemoryStore struct {
	mu       sync.Mutex
	subs     map[string]*model.Subscriber
	counters map[string]int64
	stats    *model.StatsPayload
	logger   *slog.Logger
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		subs:     make(map[string]*model.Subscriber),
		counters: make(map[string]int64),
		logger:   slog.Default(),
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) applyMonthDelta(t time.Time, delta int64) {
	monthKey := model.MonthKey(t)
	if _, ok := m.counters[monthKey]; !ok && delta < 0 {
		m.logger.Warn("decrement for month with no counter row; counter will go negative",
			slog.String("month", monthKey),
			slog.Int64("delta", delta),
		)
	}
	m.counters[monthKey] += delta
}

// CreateSubscriber inserts the record and increments its month counter.
func (m *MemoryStore) CreateSubscriber(ctx context.Context, sub *model.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *sub
	m.subs[sub.ID] = &copied
	m.applyMonthDelta(sub.SignupAt, +1)
	return nil
}

// DeleteSubscriberByEmail removes the record and decrements the counter for
// its stored signup month.
func (m *MemoryStore) DeleteSubscriberByEmail(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sub := range m.subs {
		if sub.Email == email {
			delete(m.subs, id)
			m.applyMonthDelta(sub.SignupAt, -1)
			return nil
		}
	}
	return ErrSubscriberNotFound
}

// SubscriberByEmail returns the record for an email.
func (m *MemoryStore) SubscriberByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		if sub.Email == email {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, ErrSubscriberNotFound
}

// CountSubscribers returns the number of active records.
func (m *MemoryStore) CountSubscribers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, sub := range m.subs {
		if sub.Active {
			count++
		}
	}
	return count, nil
}

// SubscribersBetween returns records with from <= signup_at < to.
func (m *MemoryStore) SubscribersBetween(ctx context.Context, from, to time.Time) ([]*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var subs []*model.Subscriber
	for _, sub := range m.subs {
		if !sub.SignupAt.Before(from) && sub.SignupAt.Before(to) {
			copied := *sub
			subs = append(subs, &copied)
		}
	}
	return subs, nil
}

// MonthlyCounts returns a snapshot of all month counters.
func (m *MemoryStore) MonthlyCounts(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counts[k] = v
	}
	return counts, nil
}

// CounterMonths returns the keys of all existing counter rows.
func (m *MemoryStore) CounterMonths(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	months := make([]string, 0, len(m.counters))
	for k := range m.counters {
		months = append(months, k)
	}
	return months, nil
}

// DeleteCounters removes the counter rows for the given month keys.
func (m *MemoryStore) DeleteCounters(ctx context.Context, months []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, month := range months {
		delete(m.counters, month)
	}
	return nil
}

// PutCounter overwrites the counter row for a month.
func (m *MemoryStore) PutCounter(ctx context.Context, month string, count int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[month] = count
	return nil
}

// SignupDates returns the raw signup date of every record: the legacy epoch
// value when one is present, the stored timestamp otherwise.
func (m *MemoryStore) SignupDates(ctx context.Context) ([]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dates := make([]any, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.SignupEpoch != nil {
			dates = append(dates, *sub.SignupEpoch)
		} else {
			dates = append(dates, sub.SignupAt)
		}
	}
	return dates, nil
}

// SaveStatsSnapshot overwrites the cached stats blob.
func (m *MemoryStore) SaveStatsSnapshot(ctx context.Context, payload *model.StatsPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *payload
	copied.Labels = append([]string(nil), payload.Labels...)
	copied.Data = append([]int64(nil), payload.Data...)
	m.stats = &copied
	return nil
}

// StatsSnapshot returns the cached stats blob.
func (m *MemoryStore) StatsSnapshot(ctx context.Context) (*model.StatsPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stats == nil {
		return nil, ErrStatsNotFound
	}
	copied := *m.stats
	copied.Labels = append([]string(nil), m.stats.Labels...)
	copied.Data = append([]int64(nil), m.stats.Data...)
	return &copied, nil
}
