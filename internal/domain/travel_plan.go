package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coordinate is a WGS84 position.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TravelPlan is a multi-day trip with a day-by-day schedule and a packing list.
// OwnerID is the account that shares the plan; UserID the account that created it.
type TravelPlan struct {
	ID            uuid.UUID     `json:"id"`
	Title         string        `json:"title"`
	Destination   string        `json:"destination"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	LocalImageRef string        `json:"local_image_ref,omitempty"` // "" when the plan has no image
	CardColor     string        `json:"card_color,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	OwnerID       string        `json:"owner_id"`
	UserID        string        `json:"user_id"`
	IsShared      bool          `json:"is_shared"`
	ShareCode     Opt[string]   `json:"share_code"`
	SharedWith    []string      `json:"shared_with,omitempty"`
	DaySchedules  []DaySchedule `json:"day_schedules"`
	PackingItems  []PackingItem `json:"packing_items"`
}

// DaySchedule holds the items of one trip day. DayNumber is 1-based.
type DaySchedule struct {
	ID            uuid.UUID      `json:"id"`
	DayNumber     int            `json:"day_number"`
	Date          time.Time      `json:"date"`
	ScheduleItems []ScheduleItem `json:"schedule_items"`
}

// ScheduleItem is one entry of a day schedule. Only the time of day of Time
// is significant for ordering.
type ScheduleItem struct {
	ID         uuid.UUID            `json:"id"`
	Time       time.Time            `json:"time"`
	Title      string               `json:"title"`
	Location   Opt[string]          `json:"location"`
	Notes      Opt[string]          `json:"notes"`
	Coordinate Opt[Coordinate]      `json:"coordinate"`
	Cost       Opt[decimal.Decimal] `json:"cost"` // absent counts as zero
	MapURL     Opt[string]          `json:"map_url"`
	LinkURL    Opt[string]          `json:"link_url"`
}

// PackingItem is one line of a packing list.
type PackingItem struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsChecked bool      `json:"is_checked"`
}

// MinuteOfDay returns the wall-clock minute of t, from 0 to 1439.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func (p TravelPlan) Kind() Kind { return KindTravelPlan }

func (p TravelPlan) Meta() Meta {
	return Meta{
		ID:         p.ID,
		UserID:     p.UserID,
		OwnerID:    p.OwnerID,
		SharedWith: p.SharedWith,
		ShareCode:  p.ShareCode.OrZero(),
		StartDate:  p.StartDate,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (p TravelPlan) WithID(id uuid.UUID) TravelPlan {
	p.ID = id
	return p
}

func (p TravelPlan) ImageRef() string { return p.LocalImageRef }

func (p TravelPlan) WithImageRef(name string) TravelPlan {
	p.LocalImageRef = name
	return p
}

// Stamp makes callerID the creator and owner. Sharing state always starts
// empty: it is only granted through a share code.
func (p TravelPlan) Stamp(callerID string, now time.Time) TravelPlan {
	p.UserID = callerID
	p.OwnerID = callerID
	p.CreatedAt = now
	p.UpdatedAt = now
	p.IsShared = false
	p.ShareCode = None[string]()
	p.SharedWith = nil
	return p
}

func (p TravelPlan) Adopt(prev TravelPlan, now time.Time) TravelPlan {
	p.ID = prev.ID
	p.CreatedAt = prev.CreatedAt
	p.UserID = prev.UserID
	p.OwnerID = prev.OwnerID
	p.IsShared = prev.IsShared
	p.ShareCode = prev.ShareCode
	p.SharedWith = slices.Clone(prev.SharedWith)
	p.UpdatedAt = now
	return p
}

// Normalize clamps EndDate to StartDate, rebuilds the day schedules over the
// trip span and gives nested items an id.
func (p TravelPlan) Normalize() TravelPlan {
	if p.EndDate.Before(p.StartDate) {
		p.EndDate = p.StartDate
	}
	p = p.RebuildSchedules()
	items := make([]PackingItem, len(p.PackingItems))
	for i, it := range p.PackingItems {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		items[i] = it
	}
	p.PackingItems = items
	return p
}

func (p TravelPlan) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	for _, it := range p.PackingItems {
		if strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("%w: packing item name is required", ErrValidation)
		}
	}
	for _, d := range p.DaySchedules {
		for _, it := range d.ScheduleItems {
			if strings.TrimSpace(it.Title) == "" {
				return fmt.Errorf("%w: schedule item title is required (day %d)", ErrValidation, d.DayNumber)
			}
			if c, ok := it.Cost.Get(); ok && c.IsNegative() {
				return fmt.Errorf("%w: cost must not be negative (day %d, %q)", ErrValidation, d.DayNumber, it.Title)
			}
		}
	}
	return nil
}

func (p TravelPlan) Reminder() Reminder {
	return Reminder{PlanID: p.ID, Kind: KindTravelPlan, Title: p.Title, At: p.StartDate}
}

// DurationDays is the number of calendar days the trip spans, at least 1.
func (p TravelPlan) DurationDays() int {
	n := DaysBetween(p.StartDate, p.EndDate.In(p.StartDate.Location())) + 1
	if n < 1 {
		return 1
	}
	return n
}

// Day returns the schedule for dayNumber. Days outside the trip span, and
// days that were never filled in, come back with no items.
func (p TravelPlan) Day(dayNumber int) DaySchedule {
	if dayNumber < 1 || dayNumber > p.DurationDays() {
		return DaySchedule{DayNumber: dayNumber, ScheduleItems: []ScheduleItem{}}
	}
	for _, d := range p.DaySchedules {
		if d.DayNumber == dayNumber {
			return d
		}
	}
	return DaySchedule{
		DayNumber:     dayNumber,
		Date:          StartOfDay(p.StartDate).AddDate(0, 0, dayNumber-1),
		ScheduleItems: []ScheduleItem{},
	}
}

// RebuildSchedules lays out one DaySchedule per trip day. Items of days that
// still exist are kept and ordered by time of day; days past the end of the
// trip are dropped.
func (p TravelPlan) RebuildSchedules() TravelPlan {
	n := p.DurationDays()
	byDay := make(map[int]DaySchedule, len(p.DaySchedules))
	for _, d := range p.DaySchedules {
		if prev, ok := byDay[d.DayNumber]; ok {
			prev.ScheduleItems = append(slices.Clone(prev.ScheduleItems), d.ScheduleItems...)
			byDay[d.DayNumber] = prev
			continue
		}
		byDay[d.DayNumber] = d
	}

	start := StartOfDay(p.StartDate)
	out := make([]DaySchedule, 0, n)
	for day := 1; day <= n; day++ {
		d := byDay[day]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.DayNumber = day
		d.Date = start.AddDate(0, 0, day-1)

		items := make([]ScheduleItem, len(d.ScheduleItems))
		for i, it := range d.ScheduleItems {
			if it.ID == uuid.Nil {
				it.ID = uuid.New()
			}
			items[i] = it
		}
		SortByTimeOfDay(items, func(it ScheduleItem) time.Time { return it.Time })
		d.ScheduleItems = items
		out = append(out, d)
	}
	p.DaySchedules = out
	return p
}

// PackingProgress returns how many packing items are checked out of the total.
func (p TravelPlan) PackingProgress() (checked, total int) {
	for _, it := range p.PackingItems {
		if it.IsChecked {
			checked++
		}
	}
	return checked, len(p.PackingItems)
}

// Share marks the plan as shared under code, owned by ownerID.
func (p TravelPlan) Share(code, ownerID string) TravelPlan {
	p.IsShared = true
	p.ShareCode = Some(code)
	p.OwnerID = ownerID
	return p
}

// Join adds callerID to SharedWith. The second result is false when the
// caller was already present, in which case p is returned unchanged.
func (p TravelPlan) Join(callerID string) (TravelPlan, bool) {
	if slices.Contains(p.SharedWith, callerID) {
		return p, false
	}
	p.SharedWith = append(slices.Clone(p.SharedWith), callerID)
	return p, true
}

// SortByTimeOfDay stably orders items by hour then minute of the time that
// at returns, ignoring the date component entirely.
func SortByTimeOfDay[E any](items []E, at func(E) time.Time) {
	slices.SortStableFunc(items, func(a, b E) int {
		return MinuteOfDay(at(a)) - MinuteOfDay(at(b))
	})
}
