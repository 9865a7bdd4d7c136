// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/apodmail/apodmail/internal/metrics"
	"github.com/apodmail/apodmail/internal/model"
	"github.com/apodmail/apodmail/internal/store"
)

// Service errors.
var (
	ErrEmailRequired     = errors.New("email is required")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrAlreadySubscribed = errors.New("email already subscribed")
	ErrNotSubscribed     = errors.New("email not found in subscription list")
	ErrRangeRequired     = errors.New("year, start month and end month are all required")
	ErrInvalidMonthRange = errors.New("invalid month range")
)

// Basic email shape check, same as the signup form's.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SubscriptionService handles signup and unsubscribe business logic.
type SubscriptionService struct {
	store   store.Store
	metrics metrics.Recorder
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(s store.Store, recorder metrics.Recorder) *SubscriptionService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &SubscriptionService{
		store:   s,
		metrics: recorder,
	}
}

// SignupInput defines input for a signup.
type SignupInput struct {
	Email string
	Notes string
}

// Signup validates the input, performs the best-effort duplicate check, and
// creates the subscriber record (which increments its month counter inside
// the same atomic unit of work).
//
// The duplicate check is deliberately not serialized with the insert: two
// concurrent signups for the same email can both pass it. That race is an
// accepted tradeoff; email uniqueness is best-effort, not a hard guarantee.
func (s *SubscriptionService) Signup(ctx context.Context, input SignupInput) (*model.Subscriber, error) {
	if input.Email == "" {
		return nil, ErrEmailRequired
	}
	if !emailRegex.MatchString(input.Email) {
		return nil, ErrInvalidEmail
	}

	_, err := s.store.SubscriberByEmail(ctx, input.Email)
	if err == nil {
		s.metrics.IncDuplicateSignup()
		return nil, ErrAlreadySubscribed
	}
	if !errors.Is(err, store.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("failed to check existing subscriber: %w", err)
	}

	sub := &model.Subscriber{
		ID:       ulid.Make().String(),
		Email:    input.Email,
		Notes:    input.Notes,
		SignupAt: time.Now(),
		Active:   true,
	}

	if err := s.store.CreateSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}

	s.metrics.IncSignup()

	return sub, nil
}

// Unsubscribe removes the subscriber for an email. The record lookup and
// deletion, and the counter decrement for the originally-counted month, are
// one atomic unit inside the store. Returns ErrNotSubscribed when no record
// matches; that is a normal alternate outcome, not a failure.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, email string) error {
	if email == "" {
		return ErrEmailRequired
	}

	err := s.store.DeleteSubscriberByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrSubscriberNotFound) {
			s.metrics.IncUnsubscribe("not_found")
			return ErrNotSubscribed
		}
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}

	s.metrics.IncUnsubscribe("removed")

	return nil
}

// Count returns the number of active subscribers.
func (s *SubscriptionService) Count(ctx context.Context) (int64, error) {
	count, err := s.store.CountSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return count, nil
}

// MonthRangeInput defines a subscriber month-range query. All fields are
// required; unbounded queries are disallowed.
type MonthRangeInput struct {
	Year       int
	StartMonth int
	EndMonth   int
}

// Bounds returns the half-open UTC interval covered by the range: inclusive
// of the first instant of the start month, exclusive of the first instant of
// the month after the end month.
func (in MonthRangeInput) Bounds() (time.Time, time.Time) {
	from := time.Date(in.Year, time.Month(in.StartMonth), 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(in.Year, time.Month(in.EndMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	return from, to
}

// SubscribersInMonthRange returns the subscriber records whose signup
// timestamps fall in the given month range.
func (s *SubscriptionService) SubscribersInMonthRange(ctx context.Context, input MonthRangeInput) ([]*model.Subscriber, error) {
	if input.Year == 0 || input.StartMonth == 0 || input.EndMonth == 0 {
		return nil, ErrRangeRequired
	}
	if input.StartMonth < 1 || input.StartMonth > 12 ||
		input.EndMonth < 1 || input.EndMonth > 12 ||
		input.StartMonth > input.EndMonth {
		return nil, ErrInvalidMonthRange
	}

	from, to := input.Bounds()

	subs, err := s.store.SubscribersBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers by range: %w", err)
	}

	return subs, nil
}
