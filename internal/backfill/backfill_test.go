package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apodmail/apodmail/internal/model"
	"github.com/apodmail/apodmail/internal/store"
	"github.com/apodmail/apodmail/internal/testutil"
)

func TestNormalizeSignupDate_MicrosecondHeuristic(t *testing.T) {
	// The same instant expressed in microseconds and milliseconds must
	// normalize to the same month key.
	micros := int64(1.25e15)
	millis := int64(1.25e12)

	tm1, ok := NormalizeSignupDate(micros)
	if !ok {
		t.Fatal("failed to normalize microsecond value")
	}
	tm2, ok := NormalizeSignupDate(millis)
	if !ok {
		t.Fatal("failed to normalize millisecond value")
	}

	if model.MonthKey(tm1) != model.MonthKey(tm2) {
		t.Errorf("month keys differ: %q (us) vs %q (ms)", model.MonthKey(tm1), model.MonthKey(tm2))
	}
}

func TestNormalizeSignupDate_Shapes(t *testing.T) {
	native := time.Date(2023, time.March, 10, 12, 0, 0, 0, time.UTC)

	if got, ok := NormalizeSignupDate(native); !ok || !got.Equal(native) {
		t.Errorf("native time not passed through: %v, ok=%v", got, ok)
	}

	if got, ok := NormalizeSignupDate("2023-03-10T12:00:00Z"); !ok || got.Month() != time.March {
		t.Errorf("RFC3339 string not parsed: %v, ok=%v", got, ok)
	}

	if _, ok := NormalizeSignupDate("not a date"); ok {
		t.Error("garbage string should not normalize")
	}

	if _, ok := NormalizeSignupDate(struct{}{}); ok {
		t.Error("unknown type should not normalize")
	}
}

func TestRunner_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// Known distribution: 3 in March 2023, 2 in October 2023, 1 in Jan 2024.
	byMonth := map[time.Time]int{
		time.Date(2023, time.March, 5, 9, 0, 0, 0, time.Local):    3,
		time.Date(2023, time.October, 20, 9, 0, 0, 0, time.Local): 2,
		time.Date(2024, time.January, 1, 9, 0, 0, 0, time.Local):  1,
	}
	for when, n := range byMonth {
		for i := 0; i < n; i++ {
			sub := testutil.NewTestSubscriber(t, testutil.UniqueEmail("roundtrip"))
			sub.SignupAt = when
			if err := mem.CreateSubscriber(ctx, sub); err != nil {
				t.Fatalf("seed subscriber: %v", err)
			}
		}
	}

	// Poison the counters so the backfill has something to repair.
	if err := mem.PutCounter(ctx, "2023-03", 99); err != nil {
		t.Fatalf("poison counter: %v", err)
	}
	if err := mem.PutCounter(ctx, "1970-01", 7); err != nil {
		t.Fatalf("poison counter: %v", err)
	}

	runner := NewRunner(mem, nil, nil)
	report, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("backfill run: %v", err)
	}

	if report.Processed != 6 || report.Counted != 6 {
		t.Errorf("report processed/counted = %d/%d, want 6/6", report.Processed, report.Counted)
	}

	counts, err := mem.MonthlyCounts(ctx)
	if err != nil {
		t.Fatalf("monthly counts: %v", err)
	}

	want := map[string]int64{"2023-03": 3, "2023-10": 2, "2024-01": 1}
	if len(counts) != len(want) {
		t.Fatalf("got %d counter rows, want %d: %v", len(counts), len(want), counts)
	}
	for month, n := range want {
		if counts[month] != n {
			t.Errorf("counter[%s] = %d, want %d", month, counts[month], n)
		}
	}

	// Running again must yield the same result: overwrite semantics, not
	// double-counting.
	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("second backfill run: %v", err)
	}
	again, err := mem.MonthlyCounts(ctx)
	if err != nil {
		t.Fatalf("monthly counts after rerun: %v", err)
	}
	for month, n := range want {
		if again[month] != n {
			t.Errorf("after rerun counter[%s] = %d, want %d", month, again[month], n)
		}
	}
}

func TestRunner_LegacyEpochs(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// A legacy record whose raw epoch is in microseconds.
	micros := int64(1.25e15)
	legacy := testutil.NewTestSubscriber(t, testutil.UniqueEmail("legacy"))
	legacy.SignupEpoch = &micros
	if err := mem.CreateSubscriber(ctx, legacy); err != nil {
		t.Fatalf("seed legacy subscriber: %v", err)
	}

	runner := NewRunner(mem, nil, nil)
	report, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("backfill run: %v", err)
	}

	wantKey := model.MonthKey(time.UnixMilli(micros / 1000))
	counts, err := mem.MonthlyCounts(ctx)
	if err != nil {
		t.Fatalf("monthly counts: %v", err)
	}
	if counts[wantKey] != 1 {
		t.Errorf("counter[%s] = %d, want 1 (counts: %v)", wantKey, counts[wantKey], counts)
	}
	if report.Processed != 1 || report.Counted != 1 {
		t.Errorf("report processed/counted = %d/%d, want 1/1", report.Processed, report.Counted)
	}
}

type recordingInvalidator struct {
	calls int
	err   error
}

func (r *recordingInvalidator) InvalidateStats(ctx context.Context) error {
	r.calls++
	return r.err
}

func TestRunner_InvalidatesStatsCache(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	sub := testutil.NewTestSubscriber(t, testutil.UniqueEmail("invalidate"))
	if err := mem.CreateSubscriber(ctx, sub); err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}

	inv := &recordingInvalidator{}
	runner := NewRunner(mem, inv, nil)
	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("backfill run: %v", err)
	}

	// Rewritten counters make any cached payload stale.
	if inv.calls != 1 {
		t.Errorf("invalidator called %d times, want 1", inv.calls)
	}
}

func TestRunner_InvalidationFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	sub := testutil.NewTestSubscriber(t, testutil.UniqueEmail("invalidate-err"))
	if err := mem.CreateSubscriber(ctx, sub); err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}

	inv := &recordingInvalidator{err: errors.New("redis down")}
	runner := NewRunner(mem, inv, nil)
	report, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("backfill run should tolerate invalidation failure: %v", err)
	}
	if report.Counted != 1 {
		t.Errorf("report counted = %d, want 1", report.Counted)
	}
}
