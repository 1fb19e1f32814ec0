package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// DefaultCategory is assigned to visited places saved without one.
const DefaultCategory = "other"

// VisitedPlace is a place the user has been to, optionally tied to a trip.
type VisitedPlace struct {
	ID           uuid.UUID      `json:"id"`
	Title        string         `json:"title"`
	Notes        Opt[string]    `json:"notes"`
	Coordinate   Coordinate     `json:"coordinate"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	VisitedAt    Opt[time.Time] `json:"visited_at"`
	PhotoRef     Opt[string]    `json:"photo_ref"`
	Address      Opt[string]    `json:"address"`
	Tags         []string       `json:"tags,omitempty"` // nil when untagged
	Category     string         `json:"category"`
	TravelPlanID Opt[uuid.UUID] `json:"travel_plan_id"`
	UserID       string         `json:"user_id"`
}

func (v VisitedPlace) Kind() Kind { return KindVisitedPlace }

// Meta uses the visit time as the start date so visited places sort by when
// they were visited, falling back to when they were recorded.
func (v VisitedPlace) Meta() Meta {
	return Meta{
		ID:        v.ID,
		UserID:    v.UserID,
		StartDate: v.VisitedAt.Or(v.CreatedAt),
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func (v VisitedPlace) WithID(id uuid.UUID) VisitedPlace {
	v.ID = id
	return v
}

func (v VisitedPlace) ImageRef() string { return v.PhotoRef.OrZero() }

func (v VisitedPlace) WithImageRef(name string) VisitedPlace {
	v.PhotoRef = OptString(name)
	return v
}

func (v VisitedPlace) Stamp(callerID string, now time.Time) VisitedPlace {
	v.UserID = callerID
	v.CreatedAt = now
	v.UpdatedAt = now
	return v
}

func (v VisitedPlace) Adopt(prev VisitedPlace, now time.Time) VisitedPlace {
	v.ID = prev.ID
	v.UserID = prev.UserID
	v.CreatedAt = prev.CreatedAt
	v.UpdatedAt = now
	return v
}

// Normalize slugs, dedupes and sorts tags and fills in the default category.
func (v VisitedPlace) Normalize() VisitedPlace {
	if strings.TrimSpace(v.Category) == "" {
		v.Category = DefaultCategory
	}
	v.Tags = NormalizeTags(v.Tags)
	return v
}

func (v VisitedPlace) Validate() error {
	if strings.TrimSpace(v.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	return nil
}

// NormalizeTags slugs every tag, drops empties and duplicates and sorts the
// result. It returns nil when nothing is left.
func NormalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if s := Slugify(t); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

// Slugify lowercases name and joins runs of letters and digits with single
// hyphens: "Rocky  Mountains!" becomes "rocky-mountains".
func Slugify(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
