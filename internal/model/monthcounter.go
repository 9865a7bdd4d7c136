package model

import (
	"fmt"
	"time"
)

// Month-key validity bounds used when aggregating stats. Keys with a year
// outside [MinCounterYear, currentYear+1] are assumed to come from malformed
// timestamp ingestion and are skipped.
const MinCounterYear = 1995

// MonthCounter is the denormalized per-month signup aggregate. At any
// quiescent point its count equals the number of active subscribers whose
// signup timestamp falls in that month. The month key is stored redundantly
// as both the row identity and a display field.
type MonthCounter struct {
	Month string `json:"month"` // YYYY-MM, zero-padded
	Count int64  `json:"count"`
}

// MonthKey derives the counter key for a timestamp as "YYYY-MM", using the
// timestamp's local calendar year and month. Every call site that touches a
// counter (increment, decrement, backfill, stats) must go through this one
// function or counters drift.
func MonthKey(t time.Time) string {
	t = t.Local()
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// ParseMonthKey parses a "YYYY-MM" counter key. The returned time is the
// first instant of that month in UTC.
func ParseMonthKey(key string) (time.Time, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return t, nil
}
