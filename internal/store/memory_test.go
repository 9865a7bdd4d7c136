package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apodmail/apodmail/internal/model"
)

func newSubscriberAt(email string, at time.Time) *model.Subscriber {
	return &model.Subscriber{
		ID:       email,
		Email:    email,
		SignupAt: at,
		Active:   true,
	}
}

func TestMemoryCreateAndLookup(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	sub := newSubscriberAt("lookup@example.com", time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC))
	if err := mem.CreateSubscriber(ctx, sub); err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}

	got, err := mem.SubscriberByEmail(ctx, "lookup@example.com")
	if err != nil {
		t.Fatalf("SubscriberByEmail failed: %v", err)
	}
	if got.ID != sub.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, sub.ID)
	}

	// The store hands out copies, not its internal record.
	got.Email = "mutated@example.com"
	again, err := mem.SubscriberByEmail(ctx, "lookup@example.com")
	if err != nil {
		t.Fatalf("SubscriberByEmail after mutation failed: %v", err)
	}
	if again.Email != "lookup@example.com" {
		t.Error("store returned a shared pointer instead of a copy")
	}

	if _, err := mem.SubscriberByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("expected ErrSubscriberNotFound, got %v", err)
	}
}

// A record mutation and its counter delta apply together.
func TestMemoryCounterFollowsRecord(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	at := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	monthKey := model.MonthKey(at)

	if err := mem.CreateSubscriber(ctx, newSubscriberAt("one@example.com", at)); err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}
	if err := mem.CreateSubscriber(ctx, newSubscriberAt("two@example.com", at)); err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}

	counts, _ := mem.MonthlyCounts(ctx)
	if counts[monthKey] != 2 {
		t.Fatalf("expected counter 2, got %d", counts[monthKey])
	}

	if err := mem.DeleteSubscriberByEmail(ctx, "one@example.com"); err != nil {
		t.Fatalf("DeleteSubscriberByEmail failed: %v", err)
	}

	counts, _ = mem.MonthlyCounts(ctx)
	if counts[monthKey] != 1 {
		t.Fatalf("expected counter 1 after delete, got %d", counts[monthKey])
	}

	if err := mem.DeleteSubscriberByEmail(ctx, "one@example.com"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("expected ErrSubscriberNotFound on repeat delete, got %v", err)
	}
}

// A decrement with no counter row still applies and goes negative. The
// backfill reconciles; the store does not clamp.
func TestMemoryNegativeCounter(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	at := time.Date(2023, 9, 10, 12, 0, 0, 0, time.UTC)
	monthKey := model.MonthKey(at)

	if err := mem.CreateSubscriber(ctx, newSubscriberAt("neg@example.com", at)); err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}
	if err := mem.DeleteCounters(ctx, []string{monthKey}); err != nil {
		t.Fatalf("DeleteCounters failed: %v", err)
	}
	if err := mem.DeleteSubscriberByEmail(ctx, "neg@example.com"); err != nil {
		t.Fatalf("DeleteSubscriberByEmail failed: %v", err)
	}

	counts, _ := mem.MonthlyCounts(ctx)
	if counts[monthKey] != -1 {
		t.Fatalf("expected counter -1, got %d", counts[monthKey])
	}
}

func TestMemorySubscribersBetween(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	from := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	mem.CreateSubscriber(ctx, newSubscriberAt("at-from@example.com", from))
	mem.CreateSubscriber(ctx, newSubscriberAt("inside@example.com", time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC)))
	mem.CreateSubscriber(ctx, newSubscriberAt("at-to@example.com", to))

	subs, err := mem.SubscribersBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("SubscribersBetween failed: %v", err)
	}

	// Half-open interval: from is included, to is not.
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(subs))
	}
	for _, sub := range subs {
		if sub.Email == "at-to@example.com" {
			t.Error("upper bound should be exclusive")
		}
	}
}

func TestMemoryCounterMaintenance(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	mem.PutCounter(ctx, "2023-01", 5)
	mem.PutCounter(ctx, "2023-02", 3)
	mem.PutCounter(ctx, "1970-01", 99)

	months, err := mem.CounterMonths(ctx)
	if err != nil {
		t.Fatalf("CounterMonths failed: %v", err)
	}
	if len(months) != 3 {
		t.Fatalf("expected 3 counter months, got %d", len(months))
	}

	if err := mem.DeleteCounters(ctx, []string{"1970-01"}); err != nil {
		t.Fatalf("DeleteCounters failed: %v", err)
	}

	counts, _ := mem.MonthlyCounts(ctx)
	if _, ok := counts["1970-01"]; ok {
		t.Error("deleted counter still present")
	}
	if counts["2023-01"] != 5 || counts["2023-02"] != 3 {
		t.Errorf("unexpected counters after delete: %v", counts)
	}
}

func TestMemoryStatsSnapshot(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	if _, err := mem.StatsSnapshot(ctx); !errors.Is(err, ErrStatsNotFound) {
		t.Fatalf("expected ErrStatsNotFound, got %v", err)
	}

	payload := &model.StatsPayload{
		Labels:      []string{"Mar 2023"},
		Data:        []int64{7},
		Total:       7,
		GeneratedAt: time.Now().UTC(),
	}
	if err := mem.SaveStatsSnapshot(ctx, payload); err != nil {
		t.Fatalf("SaveStatsSnapshot failed: %v", err)
	}

	got, err := mem.StatsSnapshot(ctx)
	if err != nil {
		t.Fatalf("StatsSnapshot failed: %v", err)
	}
	if got.Total != 7 || len(got.Labels) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	// Snapshots are copied on both write and read.
	got.Labels[0] = "mutated"
	again, _ := mem.StatsSnapshot(ctx)
	if again.Labels[0] != "Mar 2023" {
		t.Error("snapshot slice shared with caller")
	}
}

func TestMemorySignupDates(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	at := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	mem.CreateSubscriber(ctx, newSubscriberAt("ts@example.com", at))

	epoch := int64(101349360000000)
	legacy := newSubscriberAt("legacy@example.com", at)
	legacy.SignupEpoch = &epoch
	mem.CreateSubscriber(ctx, legacy)

	dates, err := mem.SignupDates(ctx)
	if err != nil {
		t.Fatalf("SignupDates failed: %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("expected 2 dates, got %d", len(dates))
	}

	var sawTime, sawEpoch bool
	for _, d := range dates {
		switch v := d.(type) {
		case time.Time:
			sawTime = true
		case int64:
			sawEpoch = true
			if v != epoch {
				t.Errorf("expected epoch %d, got %d", epoch, v)
			}
		default:
			t.Errorf("unexpected date type %T", d)
		}
	}
	if !sawTime || !sawEpoch {
		t.Error("expected one timestamp and one raw epoch value")
	}
}
