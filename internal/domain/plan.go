package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanType discriminates the two outline shapes a Plan can take.
type PlanType string

const (
	// PlanDaily is a single-day outline with an optional time of day.
	PlanDaily PlanType = "daily"
	// PlanOuting spans a date range.
	PlanOuting PlanType = "outing"
)

// Plan is a lightweight itinerary: a list of places for one day or a short outing.
type Plan struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
	Time        Opt[time.Time] `json:"time"` // only meaningful for daily plans
	Places      []PlannedPlace `json:"places"`
	CardColor   string         `json:"card_color,omitempty"`
	Description Opt[string]    `json:"description"`
	UserID      string         `json:"user_id"`
	PlanType    PlanType       `json:"plan_type"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PlannedPlace is a stop within a Plan.
type PlannedPlace struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Coordinate Coordinate  `json:"coordinate"`
	Address    Opt[string] `json:"address"`
}

func (p Plan) Kind() Kind { return KindPlan }

func (p Plan) Meta() Meta {
	return Meta{
		ID:        p.ID,
		UserID:    p.UserID,
		StartDate: p.StartDate,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (p Plan) WithID(id uuid.UUID) Plan {
	p.ID = id
	return p
}

// Plans carry no image.
func (p Plan) ImageRef() string { return "" }

func (p Plan) WithImageRef(string) Plan { return p }

func (p Plan) Stamp(callerID string, now time.Time) Plan {
	p.UserID = callerID
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

func (p Plan) Adopt(prev Plan, now time.Time) Plan {
	p.ID = prev.ID
	p.UserID = prev.UserID
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = now
	return p
}

func (p Plan) Normalize() Plan {
	if p.EndDate.Before(p.StartDate) {
		p.EndDate = p.StartDate
	}
	if p.PlanType == PlanOuting {
		p.Time = None[time.Time]()
	}
	places := make([]PlannedPlace, len(p.Places))
	for i, pl := range p.Places {
		if pl.ID == uuid.Nil {
			pl.ID = uuid.New()
		}
		places[i] = pl
	}
	p.Places = places
	return p
}

func (p Plan) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if p.PlanType != PlanDaily && p.PlanType != PlanOuting {
		return fmt.Errorf("%w: plan_type must be %q or %q", ErrValidation, PlanDaily, PlanOuting)
	}
	for _, pl := range p.Places {
		if strings.TrimSpace(pl.Name) == "" {
			return fmt.Errorf("%w: place name is required", ErrValidation)
		}
	}
	return nil
}

// At is the moment the plan begins: for a daily plan with a time, the
// start date at that wall-clock time, otherwise the start date itself.
func (p Plan) At() time.Time {
	if t, ok := p.Time.Get(); ok && p.PlanType == PlanDaily {
		y, m, d := p.StartDate.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, p.StartDate.Location())
	}
	return p.StartDate
}

func (p Plan) Reminder() Reminder {
	return Reminder{PlanID: p.ID, Kind: KindPlan, Title: p.Title, At: p.At()}
}
