// Package domain contains the core data types for the tripbook sync core.
// It depends only on uuid and decimal and is imported by every other
// internal package (store, replication, query, service, handler).
package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the record types kept in the entity store.
type Kind string

const (
	KindTravelPlan   Kind = "travel_plan"
	KindPlan         Kind = "plan"
	KindVisitedPlace Kind = "visited_place"
)

// Kinds lists every record kind the store knows about.
var Kinds = []Kind{KindTravelPlan, KindPlan, KindVisitedPlace}

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// Meta is the store-visible projection of a record. The store indexes these
// fields; everything else travels as an opaque payload.
type Meta struct {
	ID         uuid.UUID
	UserID     string
	OwnerID    string
	SharedWith []string
	ShareCode  string
	StartDate  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// VisibleTo reports whether callerID may see the record:
// it created it, owns it, or was granted access through a share code.
func (m Meta) VisibleTo(callerID string) bool {
	if callerID == "" {
		return false
	}
	return m.UserID == callerID || m.OwnerID == callerID || slices.Contains(m.SharedWith, callerID)
}

// Record is the contract every persisted record type satisfies.
// T is the concrete value type, so WithID can return it without a type switch.
type Record[T any] interface {
	Kind() Kind
	Meta() Meta
	WithID(id uuid.UUID) T
}

// Managed is a Record the orchestrators can create, replace and delete.
type Managed[T any] interface {
	Record[T]

	// ImageRef returns the side-channel image name, or "" when there is none.
	ImageRef() string
	// WithImageRef returns a copy pointing at the named image ("" clears it).
	WithImageRef(name string) T

	// Stamp prepares a new record for callerID: ownership and timestamps.
	Stamp(callerID string, now time.Time) T
	// Adopt carries server-owned fields (creation time, ownership, sharing)
	// over from the stored version and bumps UpdatedAt.
	Adopt(prev T, now time.Time) T

	// Normalize repairs fields the store never rejects for (date order,
	// schedule span, nested ids).
	Normalize() T
	// Validate returns an error wrapping ErrValidation for invalid input.
	Validate() error
}

// Reminder is what the notification collaborator is asked to schedule.
type Reminder struct {
	PlanID uuid.UUID
	Kind   Kind
	Title  string
	At     time.Time
}

// Reminding is implemented by records that carry a reminder.
type Reminding interface {
	Reminder() Reminder
}

// StartOfDay truncates t to midnight in t's own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween counts calendar days from a to b, ignoring the time of day
// and any DST shift between them. It is negative when b is before a.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
