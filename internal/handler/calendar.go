package handler

import (
	"errors"
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/tripbook/backend/internal/calendar"
	"github.com/pkordes/tripbook/backend/internal/domain"
)

// CalendarResponse is the body of GET /calendar.
type CalendarResponse struct {
	Date  openapi_types.Date `json:"date"`
	Items []calendar.Item    `json:"items"`
}

// MarkedDaysResponse is the body of GET /calendar/marked.
type MarkedDaysResponse struct {
	Month string `json:"month"`
	Days  []int  `json:"days"`
}

// GetCalendar handles GET /calendar?date=YYYY-MM-DD&tz=Zone.
// It returns the timeline of the caller's plans and travel plans for the
// day, ordered by time of day. date defaults to today in tz.
func (s *Server) GetCalendar(w http.ResponseWriter, r *http.Request) {
	loc, err := location(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	day, err := dateParam(r, "date", loc)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	plans, travel, ok := s.calendarSources(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, CalendarResponse{
		Date:  day,
		Items: calendar.Timeline(day.Time, plans, travel, loc),
	})
}

// GetMarkedDays handles GET /calendar/marked?month=YYYY-MM&tz=Zone.
// It returns the days of the month that have at least one timeline item.
func (s *Server) GetMarkedDays(w http.ResponseWriter, r *http.Request) {
	loc, err := location(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	month := time.Now().In(loc)
	if raw := r.URL.Query().Get("month"); raw != "" {
		month, err = time.ParseInLocation("2006-01", raw, loc)
		if err != nil {
			s.badRequest(w, errors.New("month must be YYYY-MM"))
			return
		}
	}
	plans, travel, ok := s.calendarSources(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MarkedDaysResponse{
		Month: month.Format("2006-01"),
		Days:  calendar.MarkedDays(month, plans, travel, loc),
	})
}

func (s *Server) calendarSources(w http.ResponseWriter, r *http.Request) ([]domain.Plan, []domain.TravelPlan, bool) {
	plans, err := s.plans.List(r.Context(), nil)
	if err != nil {
		s.writeError(w, r, err, "plan")
		return nil, nil, false
	}
	travel, err := s.travel.List(r.Context(), nil)
	if err != nil {
		s.writeError(w, r, err, "travel plan")
		return nil, nil, false
	}
	return plans, travel, true
}
