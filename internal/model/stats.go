package model

import "time"

// StatsSnapshotName is the well-known identity of the single cached stats
// blob. Part of the on-disk contract.
const StatsSnapshotName = "signup_visualization"

// StatsPayload is the persisted signup time series served to the dashboard.
// It is derived, disposable, and rebuildable from the month counters at any
// time; consumers must tolerate its absence.
type StatsPayload struct {
	Labels      []string  `json:"labels"`
	Data        []int64   `json:"data"`
	Total       int64     `json:"total"`
	GeneratedAt time.Time `json:"generated_at"`
}
