// Package calendar merges plans and travel plans into one ordered list of
// items per day.
package calendar

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// ItemKind tells where a timeline item came from.
type ItemKind string

const (
	ItemDaily  ItemKind = "daily"
	ItemOuting ItemKind = "outing"
	ItemTravel ItemKind = "travel"
)

// Item is one entry of a day's timeline. Only the time of day of Time is
// meaningful for ordering.
type Item struct {
	Time     time.Time `json:"time"`
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
	Kind     ItemKind  `json:"kind"`
	SourceID uuid.UUID `json:"source_id"`
}

// Timeline returns the items that fall on selected, in loc:
//   - a daily plan when its start date is that day,
//   - an outing when the day lies within its start and end days, inclusive,
//   - a travel plan when it starts that day.
//
// Items are ordered by hour and minute only. Ties keep input order: plans
// first, then travel plans. The result is never nil.
func Timeline(selected time.Time, plans []domain.Plan, travel []domain.TravelPlan, loc *time.Location) []Item {
	if loc == nil {
		loc = time.UTC
	}
	day := domain.StartOfDay(selected.In(loc))

	items := []Item{}
	for _, p := range plans {
		if it, ok := planItem(day, p, loc); ok {
			items = append(items, it)
		}
	}
	for _, tp := range travel {
		if domain.SameDay(tp.StartDate, day, loc) {
			items = append(items, travelItem(tp, loc))
		}
	}
	domain.SortByTimeOfDay(items, func(it Item) time.Time { return it.Time })
	return items
}

func planItem(day time.Time, p domain.Plan, loc *time.Location) (Item, bool) {
	switch p.PlanType {
	case domain.PlanDaily:
		if !domain.SameDay(p.StartDate, day, loc) {
			return Item{}, false
		}
		return Item{
			Time:     p.At().In(loc),
			Title:    p.Title,
			Subtitle: dailySubtitle(p),
			Kind:     ItemDaily,
			SourceID: p.ID,
		}, true
	case domain.PlanOuting:
		first := domain.StartOfDay(p.StartDate.In(loc))
		last := domain.StartOfDay(p.EndDate.In(loc))
		if day.Before(first) || day.After(last) {
			return Item{}, false
		}
		return Item{
			Time:     p.StartDate.In(loc),
			Title:    p.Title,
			Subtitle: rangeSubtitle(first, last),
			Kind:     ItemOuting,
			SourceID: p.ID,
		}, true
	default:
		return Item{}, false
	}
}

func travelItem(tp domain.TravelPlan, loc *time.Location) Item {
	sub := tp.Destination
	if n := tp.DurationDays(); n > 1 {
		sub = fmt.Sprintf("%s (%d days)", tp.Destination, n)
	}
	return Item{
		Time:     tp.StartDate.In(loc),
		Title:    tp.Title,
		Subtitle: sub,
		Kind:     ItemTravel,
		SourceID: tp.ID,
	}
}

func dailySubtitle(p domain.Plan) string {
	if d, ok := p.Description.Get(); ok && d != "" {
		return d
	}
	switch len(p.Places) {
	case 0:
		return ""
	case 1:
		return p.Places[0].Name
	default:
		return fmt.Sprintf("%s and %d more", p.Places[0].Name, len(p.Places)-1)
	}
}

func rangeSubtitle(first, last time.Time) string {
	if first.Equal(last) {
		return first.Format("Jan 2")
	}
	return first.Format("Jan 2") + " to " + last.Format("Jan 2")
}

// MarkedDays returns the days of month (1-based) in loc that would have a
// non-empty timeline, in ascending order.
func MarkedDays(month time.Time, plans []domain.Plan, travel []domain.TravelPlan, loc *time.Location) []int {
	if loc == nil {
		loc = time.UTC
	}
	y, m, _ := month.In(loc).Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)

	days := []int{}
	for d := first; d.Month() == m; d = d.AddDate(0, 0, 1) {
		if hasItems(d, plans, travel, loc) {
			days = append(days, d.Day())
		}
	}
	return days
}

func hasItems(day time.Time, plans []domain.Plan, travel []domain.TravelPlan, loc *time.Location) bool {
	for _, p := range plans {
		if _, ok := planItem(day, p, loc); ok {
			return true
		}
	}
	for _, tp := range travel {
		if domain.SameDay(tp.StartDate, day, loc) {
			return true
		}
	}
	return false
}
