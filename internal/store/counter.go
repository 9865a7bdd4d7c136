package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/apodmail/apodmail/internal/model"
)

// querier is the subset of pgx operations the counter maintainer needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the maintainer never depends on a
// concrete transaction implementation; it runs inside whatever unit of work
// the caller opened and performs no commit of its own.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// applyMonthDelta applies a +1/-1 delta to the counter for the month of t,
// using the caller's transaction for both the read and the write. A missing
// row reads as 0. Decrementing a month that was never counted indicates a
// record existed without ever being counted (pre-migration data); it is
// logged loudly and the counter is allowed to go negative as a visible
// signal rather than silently clamped.
func (s *PostgresStore) applyMonthDelta(ctx context.Context, q querier, t time.Time, delta int64) error {
	monthKey := model.MonthKey(t)

	var count int64
	err := q.QueryRow(ctx,
		`SELECT count FROM monthly_counters WHERE month = $1 FOR UPDATE`,
		monthKey,
	).Scan(&count)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		count = 0
		if delta < 0 {
			s.logger.Warn("decrement for month with no counter row; counter will go negative",
				slog.String("month", monthKey),
				slog.Int64("delta", delta),
			)
		}
	case err != nil:
		return fmt.Errorf("failed to read counter for %s: %w", monthKey, err)
	}

	count += delta

	// FOR UPDATE locks nothing when the month has no row yet, so two
	// transactions creating the same fresh month can both read 0. The
	// conflict arm must add the delta to the committed row; writing the
	// precomputed count would overwrite the other transaction's insert.
	_, err = q.Exec(ctx, `
		INSERT INTO monthly_counters (month, count)
		VALUES ($1, $2)
		ON CONFLICT (month) DO UPDATE SET count = monthly_counters.count + $3
	`, monthKey, count, delta)
	if err != nil {
		return fmt.Errorf("failed to write counter for %s: %w", monthKey, err)
	}

	return nil
}

// MonthlyCounts returns every month counter keyed by "YYYY-MM".
func (s *PostgresStore) MonthlyCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT month, count FROM monthly_counters`)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly counters: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var month string
		var count int64
		if err := rows.Scan(&month, &count); err != nil {
			return nil, fmt.Errorf("failed to scan counter row: %w", err)
		}
		counts[month] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counters: %w", err)
	}

	return counts, nil
}

// CounterMonths returns the keys of all existing counter rows.
func (s *PostgresStore) CounterMonths(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT month FROM monthly_counters ORDER BY month`)
	if err != nil {
		return nil, fmt.Errorf("failed to query counter months: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, fmt.Errorf("failed to scan counter month: %w", err)
		}
		months = append(months, month)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counter months: %w", err)
	}

	return months, nil
}

// DeleteCounters removes the counter rows for the given month keys.
func (s *PostgresStore) DeleteCounters(ctx context.Context, months []string) error {
	if len(months) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM monthly_counters WHERE month = ANY($1)`,
		months,
	)
	if err != nil {
		return fmt.Errorf("failed to delete counters: %w", err)
	}

	return nil
}

// PutCounter overwrites the counter row for a month with an absolute count.
func (s *PostgresStore) PutCounter(ctx context.Context, month string, count int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monthly_counters (month, count)
		VALUES ($1, $2)
		ON CONFLICT (month) DO UPDATE SET count = EXCLUDED.count
	`, month, count)
	if err != nil {
		return fmt.Errorf("failed to put counter for %s: %w", month, err)
	}

	return nil
}
