// Package budget rolls schedule item costs of a travel plan up into a grand
// total and per-day subtotals. Absent costs count as zero.
package budget

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// DayTotal is the spend of one trip day.
type DayTotal struct {
	DayNumber int             `json:"day_number"`
	Date      time.Time       `json:"date"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Items     int             `json:"items"`
}

// Summary is the budget of a whole plan. Days holds every scheduled day,
// including ones without spend.
type Summary struct {
	PlanID uuid.UUID       `json:"plan_id"`
	Total  decimal.Decimal `json:"total"`
	Days   []DayTotal      `json:"days"`
}

// Summarize totals the costs of every schedule item of plan.
func Summarize(plan domain.TravelPlan) Summary {
	s := Summary{PlanID: plan.ID, Total: decimal.Zero, Days: make([]DayTotal, 0, len(plan.DaySchedules))}
	for _, d := range plan.DaySchedules {
		day := DayTotal{DayNumber: d.DayNumber, Date: d.Date, Subtotal: decimal.Zero, Items: len(d.ScheduleItems)}
		for _, it := range d.ScheduleItems {
			day.Subtotal = day.Subtotal.Add(it.Cost.Or(decimal.Zero))
		}
		s.Total = s.Total.Add(day.Subtotal)
		s.Days = append(s.Days, day)
	}
	return s
}

// DaysWithSpend returns the days whose subtotal is not exactly zero.
func (s Summary) DaysWithSpend() []DayTotal {
	out := []DayTotal{}
	for _, d := range s.Days {
		if !d.Subtotal.IsZero() {
			out = append(out, d)
		}
	}
	return out
}

// Line is one schedule item flattened for export.
type Line struct {
	PlanID    uuid.UUID
	PlanTitle string
	DayNumber int
	Date      time.Time
	Time      time.Time
	Title     string
	Location  string
	Cost      domain.Opt[decimal.Decimal]
}

// Lines returns one Line per schedule item of plan, day by day.
func Lines(plan domain.TravelPlan) []Line {
	out := []Line{}
	for _, d := range plan.DaySchedules {
		for _, it := range d.ScheduleItems {
			out = append(out, Line{
				PlanID:    plan.ID,
				PlanTitle: plan.Title,
				DayNumber: d.DayNumber,
				Date:      d.Date,
				Time:      it.Time,
				Title:     it.Title,
				Location:  it.Location.OrZero(),
				Cost:      it.Cost,
			})
		}
	}
	return out
}

var csvHeaders = []string{"plan_id", "plan_title", "day", "date", "time", "title", "location", "cost"}

// WriteCSV writes lines as CSV with a header row. Absent costs are left empty.
func WriteCSV(w io.Writer, lines []Line) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("budget.WriteCSV: %w", err)
	}
	for _, l := range lines {
		cost := ""
		if c, ok := l.Cost.Get(); ok {
			cost = c.StringFixed(2)
		}
		record := []string{
			l.PlanID.String(),
			l.PlanTitle,
			fmt.Sprint(l.DayNumber),
			l.Date.Format(time.DateOnly),
			l.Time.Format("15:04"),
			l.Title,
			l.Location,
			cost,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("budget.WriteCSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("budget.WriteCSV: %w", err)
	}
	return nil
}
