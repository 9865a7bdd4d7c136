package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/apodmail/apodmail/internal/metrics"
	"github.com/apodmail/apodmail/internal/model"
	"github.com/apodmail/apodmail/internal/store"
)

// ErrStatsNotGenerated is returned by Cached when stats have never been
// generated. Callers must treat it as a normal state, not an error.
var ErrStatsNotGenerated = errors.New("stats not generated yet")

// StatsCache is the optional front cache for the stats payload. The Redis
// implementation lives in the cache package; a nil cache degrades to store
// reads.
type StatsCache interface {
	GetStats(ctx context.Context) (*model.StatsPayload, error)
	SetStats(ctx context.Context, payload *model.StatsPayload) error
}

// StatsService builds and serves the signup time series. The dashboard never
// recomputes on request: it reads the cached payload written by Generate.
type StatsService struct {
	store   store.Store
	cache   StatsCache
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewStatsService creates a new StatsService. cache may be nil.
func NewStatsService(s store.Store, cache StatsCache, recorder metrics.Recorder, logger *slog.Logger) *StatsService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{
		store:   s,
		cache:   cache,
		metrics: recorder,
		logger:  logger.With("component", "service.stats"),
	}
}

// Generate reads all month counters, drops keys with implausible years,
// sorts them chronologically, and persists the labeled series plus total as
// the stats snapshot, overwriting any previous value. Idempotent: two runs
// with no intervening writes produce identical payloads (generatedAt aside).
func (s *StatsService) Generate(ctx context.Context) (*model.StatsPayload, error) {
	start := time.Now()

	counts, err := s.store.MonthlyCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch monthly counts: %w", err)
	}

	// Zero-padded YYYY-MM keys sort lexicographically into chronological
	// order.
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	currentYear := time.Now().Year()

	payload := &model.StatsPayload{
		Labels:      []string{},
		Data:        []int64{},
		GeneratedAt: time.Now().UTC(),
	}

	for _, key := range keys {
		month, err := model.ParseMonthKey(key)
		if err != nil {
			s.logger.Warn("skipping malformed counter key", slog.String("key", key))
			continue
		}

		// Guard against garbage keys from malformed timestamp ingestion.
		year := month.Year()
		if year < model.MinCounterYear || year > currentYear+1 {
			s.logger.Warn("skipping counter key with out-of-range year",
				slog.String("key", key),
				slog.Int("year", year),
			)
			continue
		}

		payload.Labels = append(payload.Labels, month.Format("Jan 2006"))
		payload.Data = append(payload.Data, counts[key])
		payload.Total += counts[key]
	}

	if err := s.store.SaveStatsSnapshot(ctx, payload); err != nil {
		return nil, fmt.Errorf("failed to save stats snapshot: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetStats(ctx, payload); err != nil {
			// The durable snapshot is already written; a cold cache only
			// costs the next reader a store round trip.
			s.logger.Warn("failed to populate stats cache", "error", err)
		}
	}

	s.metrics.IncStatsGenerated()
	s.metrics.ObserveStatsGeneration(time.Since(start))

	return payload, nil
}

// Cached returns the last generated stats payload without recomputing,
// preferring the front cache and falling back to the durable snapshot.
// Returns ErrStatsNotGenerated when no snapshot exists.
func (s *StatsService) Cached(ctx context.Context) (*model.StatsPayload, error) {
	if s.cache != nil {
		payload, err := s.cache.GetStats(ctx)
		if err == nil {
			return payload, nil
		}
	}

	payload, err := s.store.StatsSnapshot(ctx)
	if err != nil {
		if errors.Is(err, store.ErrStatsNotFound) {
			return nil, ErrStatsNotGenerated
		}
		return nil, fmt.Errorf("failed to read stats snapshot: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetStats(ctx, payload); err != nil {
			s.logger.Warn("failed to repopulate stats cache", "error", err)
		}
	}

	return payload, nil
}
