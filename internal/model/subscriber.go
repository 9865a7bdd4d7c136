// Package model defines domain entities for the application.
package model

import (
	"time"
)

// Subscriber represents a newsletter signup record.
//
// Email is the business key but is deliberately not enforced as unique at
// the store level; duplicate prevention is a best-effort existence check
// performed before insert.
type Subscriber struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Notes    string    `json:"notes,omitempty"`
	SignupAt time.Time `json:"signup_at"`
	Active   bool      `json:"active"`

	// SignupEpoch is a legacy raw epoch value carried by records imported
	// before the service recorded proper timestamps. It may be in
	// milliseconds or microseconds; only the backfill path interprets it.
	SignupEpoch *int64 `json:"-"`
}
