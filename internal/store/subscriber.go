package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/apodmail/apodmail/internal/model"
)

// CreateSubscriber inserts a new subscriber record and increments the month
// counter for its signup timestamp inside one transaction. On any failure
// the transaction rolls back and neither write is applied.
func (s *PostgresStore) CreateSubscriber(ctx context.Context, sub *model.Subscriber) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO subscribers (id, email, notes, signup_at, active)
		VALUES ($1, $2, $3, $4, $5)
	`, sub.ID, sub.Email, sub.Notes, sub.SignupAt, sub.Active)
	if err != nil {
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}

	if err := s.applyMonthDelta(ctx, tx, sub.SignupAt, +1); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit signup: %w", err)
	}

	return nil
}

// DeleteSubscriberByEmail removes a subscriber and decrements the counter
// for the month the signup was originally counted in. The record is
// re-fetched inside the transaction; a pre-transaction lookup would risk
// acting on stale data. Returns ErrSubscriberNotFound when no record
// matches, after closing the transaction cleanly.
func (s *PostgresStore) DeleteSubscriberByEmail(ctx context.Context, email string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var sub model.Subscriber
	err = tx.QueryRow(ctx, `
		SELECT id, email, signup_at
		FROM subscribers
		WHERE email = $1
		LIMIT 1
		FOR UPDATE
	`, email).Scan(&sub.ID, &sub.Email, &sub.SignupAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSubscriberNotFound
		}
		return fmt.Errorf("failed to look up subscriber: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}

	// Decrement targets the stored signup time, not the current time.
	if err := s.applyMonthDelta(ctx, tx, sub.SignupAt, -1); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unsubscribe: %w", err)
	}

	return nil
}

// SubscriberByEmail retrieves a subscriber record by email address.
func (s *PostgresStore) SubscriberByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, notes, signup_at, active
		FROM subscribers
		WHERE email = $1
		LIMIT 1
	`, email).Scan(&sub.ID, &sub.Email, &sub.Notes, &sub.SignupAt, &sub.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber by email: %w", err)
	}

	return &sub, nil
}

// CountSubscribers returns the number of active subscriber records.
func (s *PostgresStore) CountSubscribers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE active`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}

	return count, nil
}

// SubscribersBetween returns records with from <= signup_at < to, ordered by
// signup time.
func (s *PostgresStore) SubscribersBetween(ctx context.Context, from, to time.Time) ([]*model.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, notes, signup_at, active
		FROM subscribers
		WHERE signup_at >= $1 AND signup_at < $2
		ORDER BY signup_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers by range: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscriber
	for rows.Next() {
		var sub model.Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.Notes, &sub.SignupAt, &sub.Active); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w", err)
	}

	return subs, nil
}

// SignupDates scans the raw signup date of every subscriber record. Records
// written by this service carry a proper timestamp; legacy imports carry a
// raw epoch value whose unit is decided by the backfill's normalization
// heuristic. This is a full table scan and is acceptable only for the
// one-off backfill path, never for request-serving code.
func (s *PostgresStore) SignupDates(ctx context.Context) ([]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT signup_at, signup_epoch FROM subscribers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query signup dates: %w", err)
	}
	defer rows.Close()

	var dates []any
	for rows.Next() {
		var signupAt time.Time
		var epoch *int64
		if err := rows.Scan(&signupAt, &epoch); err != nil {
			return nil, fmt.Errorf("failed to scan signup date: %w", err)
		}
		if epoch != nil {
			dates = append(dates, *epoch)
		} else {
			dates = append(dates, signupAt)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signup dates: %w", err)
	}

	return dates, nil
}
