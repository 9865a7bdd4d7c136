// Package store provides the persistence layer for subscriber records and
// their derived aggregates.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/apodmail/apodmail/internal/model"
)

// Common errors for store operations.
var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrStatsNotFound      = errors.New("stats snapshot not found")
)

// DeleteBatchSize is the maximum number of counter rows removed per batch
// during a backfill. 500 is the documented safe ceiling for the target store.
const DeleteBatchSize = 500

// Store is the capability set components are handed instead of a concrete
// database handle. PostgresStore is the real backing store; MemoryStore is
// the test double.
//
// CreateSubscriber and DeleteSubscriberByEmail are atomic units: the record
// mutation and the month-counter delta commit or abort together, so an
// external observer never sees one without the other.
type Store interface {
	// CreateSubscriber inserts the record and increments the counter for its
	// signup month in one atomic unit.
	CreateSubscriber(ctx context.Context, sub *model.Subscriber) error

	// DeleteSubscriberByEmail looks the record up by email inside the
	// transaction, deletes it, and decrements the counter for the month the
	// signup was originally counted in. Returns ErrSubscriberNotFound, after
	// closing the unit cleanly, when no record matches.
	DeleteSubscriberByEmail(ctx context.Context, email string) error

	// SubscriberByEmail returns the record for an email, or
	// ErrSubscriberNotFound.
	SubscriberByEmail(ctx context.Context, email string) (*model.Subscriber, error)

	// CountSubscribers returns the number of active subscriber records.
	CountSubscribers(ctx context.Context) (int64, error)

	// SubscribersBetween returns records with from <= signup_at < to.
	SubscribersBetween(ctx context.Context, from, to time.Time) ([]*model.Subscriber, error)

	// MonthlyCounts returns every month counter keyed by "YYYY-MM".
	MonthlyCounts(ctx context.Context) (map[string]int64, error)

	// CounterMonths returns the keys of all existing counter rows.
	CounterMonths(ctx context.Context) ([]string, error)

	// DeleteCounters removes the counter rows for the given month keys.
	// Callers batch keys to at most DeleteBatchSize per call.
	DeleteCounters(ctx context.Context, months []string) error

	// PutCounter overwrites (not increments) the counter row for a month.
	// Only the backfill path writes counters this way.
	PutCounter(ctx context.Context, month string, count int64) error

	// SignupDates returns the raw signup date of every subscriber record:
	// time.Time for records written by this service, int64 epoch values for
	// legacy imports, strings for anything older still.
	SignupDates(ctx context.Context) ([]any, error)

	// SaveStatsSnapshot overwrites the cached stats blob.
	SaveStatsSnapshot(ctx context.Context, payload *model.StatsPayload) error

	// StatsSnapshot returns the cached stats blob, or ErrStatsNotFound when
	// it has never been generated. Absence is a normal state.
	StatsSnapshot(ctx context.Context) (*model.StatsPayload, error)
}
