package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 7, d, 0, 0, 0, 0, time.UTC)
}

func at(d, h, m int) time.Time {
	return time.Date(2024, 7, d, h, m, 0, 0, time.UTC)
}

func planFixture() domain.TravelPlan {
	return domain.TravelPlan{
		Title:       "Kyoto",
		Destination: "Japan",
		StartDate:   day(10),
		EndDate:     day(12),
	}
}

func TestTravelPlan_DurationDays(t *testing.T) {
	p := planFixture()
	assert.Equal(t, 3, p.DurationDays())

	p.EndDate = p.StartDate
	assert.Equal(t, 1, p.DurationDays(), "same-day trip spans one day")

	p.EndDate = day(9)
	assert.Equal(t, 1, p.DurationDays(), "inverted range never goes below one day")
}

func TestTravelPlan_Normalize_ClampsEndDate(t *testing.T) {
	p := planFixture()
	p.EndDate = day(1)

	got := p.Normalize()

	assert.True(t, got.EndDate.Equal(got.StartDate), "end date should be clamped to start date")
	assert.Len(t, got.DaySchedules, 1)
}

func TestTravelPlan_Normalize_BuildsContiguousDays(t *testing.T) {
	p := planFixture()
	p.DaySchedules = []domain.DaySchedule{
		{DayNumber: 2, ScheduleItems: []domain.ScheduleItem{
			{Title: "Dinner", Time: at(11, 19, 0)},
			{Title: "Temple", Time: at(1, 9, 30)}, // date component is irrelevant
		}},
		{DayNumber: 7, ScheduleItems: []domain.ScheduleItem{{Title: "Out of range"}}},
	}

	got := p.Normalize()

	require.Len(t, got.DaySchedules, 3)
	for i, d := range got.DaySchedules {
		assert.Equal(t, i+1, d.DayNumber)
		assert.True(t, d.Date.Equal(day(10+i)), "day %d date", d.DayNumber)
		assert.NotEqual(t, uuid.Nil, d.ID)
		assert.NotNil(t, d.ScheduleItems)
	}
	items := got.DaySchedules[1].ScheduleItems
	require.Len(t, items, 2)
	assert.Equal(t, "Temple", items[0].Title)
	assert.Equal(t, "Dinner", items[1].Title)
	assert.NotEqual(t, uuid.Nil, items[0].ID)
}

func TestTravelPlan_Normalize_DoesNotMutateInput(t *testing.T) {
	p := planFixture()
	p.PackingItems = []domain.PackingItem{{Name: "Passport"}}

	_ = p.Normalize()

	assert.Equal(t, uuid.Nil, p.PackingItems[0].ID)
}

func TestTravelPlan_Day_OutOfRangeIsEmpty(t *testing.T) {
	p := planFixture().Normalize()

	for _, n := range []int{-1, 0, 4, 100} {
		d := p.Day(n)
		assert.Empty(t, d.ScheduleItems, "day %d", n)
		assert.NotNil(t, d.ScheduleItems, "day %d", n)
	}
}

func TestTravelPlan_Day_MissingDayIsEmpty(t *testing.T) {
	p := planFixture() // not normalized: no day schedules at all

	d := p.Day(2)

	assert.Equal(t, 2, d.DayNumber)
	assert.True(t, d.Date.Equal(day(11)))
	assert.Empty(t, d.ScheduleItems)
}

func TestTravelPlan_Validate(t *testing.T) {
	p := planFixture()
	assert.NoError(t, p.Validate())

	p.Title = "  "
	assert.ErrorIs(t, p.Validate(), domain.ErrValidation)
}

func TestTravelPlan_Validate_NegativeCost(t *testing.T) {
	p := planFixture()
	p.DaySchedules = []domain.DaySchedule{{DayNumber: 1, ScheduleItems: []domain.ScheduleItem{
		{Title: "Taxi", Cost: domain.Some(decimal.NewFromInt(-5))},
	}}}

	assert.ErrorIs(t, p.Validate(), domain.ErrValidation)
}

func TestTravelPlan_Join_Idempotent(t *testing.T) {
	p := planFixture().Share("ABCD1234", "owner")

	p, added := p.Join("friend")
	assert.True(t, added)
	p, added = p.Join("friend")
	assert.False(t, added)

	assert.Equal(t, []string{"friend"}, p.SharedWith)
	assert.True(t, p.IsShared)
	assert.Equal(t, "owner", p.OwnerID)
}

func TestTravelPlan_StampAndAdopt(t *testing.T) {
	now := at(1, 8, 0)
	p := planFixture()
	p.SharedWith = []string{"mallory"}

	created := p.Stamp("alice", now)
	assert.Equal(t, "alice", created.UserID)
	assert.Equal(t, "alice", created.OwnerID)
	assert.Nil(t, created.SharedWith, "sharing is only granted through a share code")

	created.ID = uuid.New()
	created = created.Share("CODE", "alice")
	created, _ = created.Join("bob")

	later := at(2, 8, 0)
	edit := planFixture()
	edit.Title = "Kyoto & Nara"
	got := edit.Adopt(created, later)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Kyoto & Nara", got.Title)
	assert.Equal(t, []string{"bob"}, got.SharedWith)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestTravelPlan_PackingProgress(t *testing.T) {
	p := planFixture()
	p.PackingItems = []domain.PackingItem{{Name: "a", IsChecked: true}, {Name: "b"}, {Name: "c", IsChecked: true}}

	checked, total := p.PackingProgress()

	assert.Equal(t, 2, checked)
	assert.Equal(t, 3, total)
}

func TestMeta_VisibleTo(t *testing.T) {
	m := domain.Meta{UserID: "u", OwnerID: "o", SharedWith: []string{"s"}}

	assert.True(t, m.VisibleTo("u"))
	assert.True(t, m.VisibleTo("o"))
	assert.True(t, m.VisibleTo("s"))
	assert.False(t, m.VisibleTo("x"))
	assert.False(t, m.VisibleTo(""))
}

func TestTravelPlan_JSONKeepsAbsentFields(t *testing.T) {
	p := planFixture().Normalize()
	p.DaySchedules[0].ScheduleItems = []domain.ScheduleItem{{Title: "Free walk", Time: at(10, 10, 0)}}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got domain.TravelPlan
	require.NoError(t, json.Unmarshal(b, &got))

	item := got.DaySchedules[0].ScheduleItems[0]
	assert.False(t, item.Cost.IsSome())
	assert.False(t, got.ShareCode.IsSome())
	assert.True(t, item.Cost.Or(decimal.Zero).IsZero())
}
