// Package backfill recomputes all month counters from scratch by scanning
// every subscriber record. It is a one-off batch job used to initialize or
// repair counters that are missing, stale, or corrupted; the incremental
// maintenance path in the store keeps them consistent afterwards.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/apodmail/apodmail/internal/model"
	"github.com/apodmail/apodmail/internal/store"
)

// microsecondThreshold decides the unit of a raw numeric timestamp. Values
// above it are assumed to be microseconds (1e14 ms is already year 5138);
// a typical 2009 signup in microseconds is about 1.25e15.
const microsecondThreshold = 1e14

// Report summarizes one backfill run. Processed and Counted diverging means
// some raw dates failed to parse; that is a warning, not a failure.
type Report struct {
	Deleted   int
	Processed int
	Counted   int64
	Months    int
}

// StatsInvalidator drops a cached stats payload so it cannot outlive a
// counter repair.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context) error
}

// Runner executes the backfill against a store.
type Runner struct {
	store       store.Store
	invalidator StatsInvalidator
	logger      *slog.Logger
}

// NewRunner creates a backfill Runner. invalidator may be nil when no stats
// cache is reachable from the job.
func NewRunner(s store.Store, invalidator StatsInvalidator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:       s,
		invalidator: invalidator,
		logger:      logger.With("component", "backfill"),
	}
}

// Run deletes every existing counter row, re-aggregates counts from the raw
// signup dates in memory, and writes one counter row per month with the
// aggregated count, overwriting any prior value. It runs without
// transactions; races against live writes are accepted because the job
// targets a quiescent or soon-to-be-corrected dataset.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	months, err := r.store.CounterMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list counter months: %w", err)
	}

	// Delete in bounded batches to respect store batch limits.
	for i := 0; i < len(months); i += store.DeleteBatchSize {
		end := i + store.DeleteBatchSize
		if end > len(months) {
			end = len(months)
		}
		if err := r.store.DeleteCounters(ctx, months[i:end]); err != nil {
			return nil, fmt.Errorf("failed to delete counter batch: %w", err)
		}
		r.logger.Info("deleted counter batch",
			slog.Int("from", i),
			slog.Int("to", end),
		)
	}
	report.Deleted = len(months)

	dates, err := r.store.SignupDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signup dates: %w", err)
	}
	report.Processed = len(dates)
	r.logger.Info("scanned subscriber records", slog.Int("count", len(dates)))

	aggregated := make(map[string]int64)
	for _, raw := range dates {
		t, ok := NormalizeSignupDate(raw)
		if !ok {
			continue
		}
		aggregated[model.MonthKey(t)]++
	}

	keys := make([]string, 0, len(aggregated))
	for k := range aggregated {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, month := range keys {
		count := aggregated[month]
		if err := r.store.PutCounter(ctx, month, count); err != nil {
			return nil, fmt.Errorf("failed to write counter for %s: %w", month, err)
		}
		r.logger.Info("wrote counter",
			slog.String("month", month),
			slog.Int64("count", count),
		)
		report.Counted += count
	}
	report.Months = len(keys)

	if int64(report.Processed) != report.Counted {
		r.logger.Warn("count mismatch: some signup dates failed to parse",
			slog.Int("processed", report.Processed),
			slog.Int64("counted", report.Counted),
		)
	}

	// The rewritten counters make any cached stats payload stale. A failed
	// invalidation is a warning; the counter writes above already committed.
	if r.invalidator != nil {
		if err := r.invalidator.InvalidateStats(ctx); err != nil {
			r.logger.Warn("failed to invalidate cached stats", "error", err)
		} else {
			r.logger.Info("invalidated cached stats")
		}
	}

	return report, nil
}

// NormalizeSignupDate interprets a raw signup date of any historical shape.
// Native times and parseable strings pass through untouched. Raw numeric
// values are epoch timestamps: anything above 1e14 is taken to be
// microseconds and divided by 1000 before being read as milliseconds. This
// heuristic repairs a historical data-format inconsistency and must not
// change.
func NormalizeSignupDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case int64:
		return fromEpoch(float64(v)), true
	case int:
		return fromEpoch(float64(v)), true
	case float64:
		return fromEpoch(v), true
	default:
		return time.Time{}, false
	}
}

func fromEpoch(v float64) time.Time {
	if v > microsecondThreshold {
		v = v / 1000
	}
	return time.UnixMilli(int64(v))
}
