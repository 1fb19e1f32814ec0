package budget_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripbook/backend/internal/budget"
	"github.com/pkordes/tripbook/backend/internal/domain"
)

func cost(n int64) domain.Opt[decimal.Decimal] {
	return domain.Some(decimal.NewFromInt(n))
}

func planWithCosts() domain.TravelPlan {
	start := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	return domain.TravelPlan{
		ID:        uuid.MustParse("6f1c8c43-3f3e-4c43-9b55-2b1e6c0a8d11"),
		Title:     "Kyoto",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 2),
		DaySchedules: []domain.DaySchedule{
			{DayNumber: 1, Date: start, ScheduleItems: []domain.ScheduleItem{
				{Title: "Hotel", Cost: cost(1000), Time: start.Add(15 * time.Hour)},
				{Title: "Walk", Location: domain.Some("Gion"), Time: start.Add(18 * time.Hour)},
				{Title: "Dinner", Cost: cost(500), Time: start.Add(19 * time.Hour)},
			}},
			{DayNumber: 2, Date: start.AddDate(0, 0, 1), ScheduleItems: []domain.ScheduleItem{
				{Title: "Temple"},
				{Title: "Garden"},
			}},
			{DayNumber: 3, Date: start.AddDate(0, 0, 2), ScheduleItems: []domain.ScheduleItem{}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := budget.Summarize(planWithCosts())

	assert.True(t, s.Total.Equal(decimal.NewFromInt(1500)), "got %s", s.Total)
	require.Len(t, s.Days, 3)
	assert.True(t, s.Days[0].Subtotal.Equal(decimal.NewFromInt(1500)))
	assert.True(t, s.Days[1].Subtotal.IsZero())
	assert.Equal(t, 2, s.Days[1].Items)
}

func TestSummary_DaysWithSpend(t *testing.T) {
	days := budget.Summarize(planWithCosts()).DaysWithSpend()

	require.Len(t, days, 1, "days whose costs are all absent are left out")
	assert.Equal(t, 1, days[0].DayNumber)
}

func TestSummarize_ExplicitZeroIsLeftOut(t *testing.T) {
	p := planWithCosts()
	p.DaySchedules[1].ScheduleItems[0].Cost = cost(0)

	days := budget.Summarize(p).DaysWithSpend()

	assert.Len(t, days, 1)
}

func TestSummarize_Decimals(t *testing.T) {
	p := planWithCosts()
	p.DaySchedules[2].ScheduleItems = []domain.ScheduleItem{
		{Title: "Tea", Cost: domain.Some(decimal.RequireFromString("0.10"))},
		{Title: "Snack", Cost: domain.Some(decimal.RequireFromString("0.20"))},
	}

	s := budget.Summarize(p)

	assert.Equal(t, "0.3", s.Days[2].Subtotal.String())
	assert.Equal(t, "1500.3", s.Total.String())
}

func TestSummarize_EmptyPlan(t *testing.T) {
	s := budget.Summarize(domain.TravelPlan{})

	assert.True(t, s.Total.IsZero())
	assert.NotNil(t, s.Days)
	assert.NotNil(t, s.DaysWithSpend())
}

func TestLines(t *testing.T) {
	lines := budget.Lines(planWithCosts())

	require.Len(t, lines, 5)
	assert.Equal(t, "Hotel", lines[0].Title)
	assert.Equal(t, "Gion", lines[1].Location)
	assert.False(t, lines[1].Cost.IsSome())
	assert.Equal(t, 2, lines[3].DayNumber)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, budget.WriteCSV(&buf, budget.Lines(planWithCosts())[:2]))

	rows := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, rows, 3)
	assert.Equal(t, "plan_id,plan_title,day,date,time,title,location,cost", rows[0])
	assert.Equal(t, "6f1c8c43-3f3e-4c43-9b55-2b1e6c0a8d11,Kyoto,1,2024-07-10,15:00,Hotel,,1000.00", rows[1])
	assert.Equal(t, "6f1c8c43-3f3e-4c43-9b55-2b1e6c0a8d11,Kyoto,1,2024-07-10,18:00,Walk,Gion,", rows[2])
}
