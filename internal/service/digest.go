package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apodmail/apodmail/internal/email"
	"github.com/apodmail/apodmail/internal/metrics"
	"github.com/apodmail/apodmail/internal/model"
)

// ContentSource fetches the structured picture-of-the-day record for a
// calendar date. Consumed once per fan-out cycle.
type ContentSource interface {
	Fetch(ctx context.Context, date time.Time) (*model.APOD, error)
}

// Dispatcher accepts outbound email tasks, fire-and-forget.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.EmailTask) error
}

// DigestService runs the daily fan-out: fetch today's APOD, render the
// email once, and enqueue one personalized task per subscriber in the
// requested signup month range.
type DigestService struct {
	subs       *SubscriptionService
	source     ContentSource
	builder    *email.Builder
	dispatcher Dispatcher
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewDigestService creates a new DigestService.
func NewDigestService(subs *SubscriptionService, source ContentSource, builder *email.Builder, dispatcher Dispatcher, recorder metrics.Recorder, logger *slog.Logger) *DigestService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DigestService{
		subs:       subs,
		source:     source,
		builder:    builder,
		dispatcher: dispatcher,
		metrics:    recorder,
		logger:     logger.With("component", "service.digest"),
	}
}

// EnqueueDaily enqueues today's email for every subscriber in the month
// range and returns the number of tasks enqueued. A failed enqueue for one
// subscriber is logged and skipped; it does not abort the rest of the
// fan-out.
func (s *DigestService) EnqueueDaily(ctx context.Context, rng MonthRangeInput) (int, error) {
	apod, err := s.source.Fetch(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to fetch APOD: %w", err)
	}
	s.logger.Info("fetched APOD",
		slog.String("title", apod.Title),
		slog.String("media_type", string(apod.MediaType)),
	)

	// Render and tag links once; personalization per recipient is a cheap
	// substitution.
	tmpl, err := s.builder.Daily(apod)
	if err != nil {
		return 0, fmt.Errorf("failed to build email: %w", err)
	}

	subs, err := s.subs.SubscribersInMonthRange(ctx, rng)
	if err != nil {
		return 0, err
	}
	s.logger.Info("found subscribers for range",
		slog.Int("count", len(subs)),
		slog.Int("year", rng.Year),
		slog.Int("start_month", rng.StartMonth),
		slog.Int("end_month", rng.EndMonth),
	)

	count := 0
	for _, sub := range subs {
		task := model.EmailTask{
			Recipient: sub.Email,
			Subject:   tmpl.Subject,
			Body:      tmpl.Personalize(sub.Email),
		}

		if err := s.dispatcher.Dispatch(ctx, task); err != nil {
			s.logger.Error("failed to enqueue email",
				slog.String("email", sub.Email),
				"error", err,
			)
			continue
		}
		count++
	}

	s.metrics.ObserveDigestFanOut(count)
	s.logger.Info("enqueued email tasks", slog.Int("count", count))

	return count, nil
}
