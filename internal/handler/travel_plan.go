package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/pkordes/tripbook/backend/internal/budget"
	"github.com/pkordes/tripbook/backend/internal/domain"
)

// ListTravelPlans handles GET /travel-plans.
// Supports ?page= and ?limit= (defaults: page=1, limit=20, max=100) and
// ?shared=true to list only plans shared with the caller.
func (s *Server) ListTravelPlans(w http.ResponseWriter, r *http.Request) {
	var where func(domain.TravelPlan) bool
	if shared, _ := strconv.ParseBool(r.URL.Query().Get("shared")); shared {
		where = func(p domain.TravelPlan) bool { return p.IsShared }
	}
	listRecords(s, s.travel, w, r, where)
}

// CreateTravelPlan handles POST /travel-plans.
func (s *Server) CreateTravelPlan(w http.ResponseWriter, r *http.Request) {
	createRecord(s, s.travel, w, r, "travel plan")
}

// GetTravelPlan handles GET /travel-plans/{id}.
func (s *Server) GetTravelPlan(w http.ResponseWriter, r *http.Request) {
	getRecord(s, s.travel, w, r, "travel plan")
}

// UpdateTravelPlan handles PUT /travel-plans/{id}.
func (s *Server) UpdateTravelPlan(w http.ResponseWriter, r *http.Request) {
	updateRecord(s, s.travel, w, r, "travel plan")
}

// DeleteTravelPlan handles DELETE /travel-plans/{id}.
func (s *Server) DeleteTravelPlan(w http.ResponseWriter, r *http.Request) {
	deleteRecord(s, s.travel, w, r, "travel plan")
}

// GetTravelPlanDay handles GET /travel-plans/{id}/days/{n}.
// Days outside the trip come back with no items.
func (s *Server) GetTravelPlanDay(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadTravelPlan(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		s.badRequest(w, errDayNumber)
		return
	}
	writeJSON(w, http.StatusOK, plan.Day(n))
}

// BudgetDay is one day of a budget response.
type BudgetDay struct {
	DayNumber int                `json:"day_number"`
	Date      openapi_types.Date `json:"date"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
	Items     int                `json:"items"`
}

// BudgetResponse is the body of GET /travel-plans/{id}/budget.
type BudgetResponse struct {
	PlanID openapi_types.UUID `json:"plan_id"`
	Total  decimal.Decimal    `json:"total"`
	Days   []BudgetDay        `json:"days"`
}

// GetBudget handles GET /travel-plans/{id}/budget.
// The JSON body lists only days with spend. Use ?format=csv for one CSV
// row per schedule item.
func (s *Server) GetBudget(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadTravelPlan(w, r)
	if !ok {
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		var buf bytes.Buffer
		if err := budget.WriteCSV(&buf, budget.Lines(plan)); err != nil {
			s.writeError(w, r, err, "travel plan")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
		return
	}

	sum := budget.Summarize(plan)
	days := sum.DaysWithSpend()
	resp := BudgetResponse{PlanID: sum.PlanID, Total: sum.Total, Days: make([]BudgetDay, len(days))}
	for i, d := range days {
		resp.Days[i] = BudgetDay{
			DayNumber: d.DayNumber,
			Date:      openapi_types.Date{Time: d.Date},
			Subtotal:  d.Subtotal,
			Items:     d.Items,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ShareRequest is the body of POST /travel-plans/{id}/share.
// An empty code draws a fresh one; an empty owner means the caller.
type ShareRequest struct {
	Code    string `json:"code"`
	OwnerID string `json:"owner_id"`
}

// ShareTravelPlan handles POST /travel-plans/{id}/share.
func (s *Server) ShareTravelPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	var req ShareRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeDecodeError(w, r, err)
			return
		}
	}
	plan, err := s.sharing.UpdateShareCode(r.Context(), id, req.Code, req.OwnerID)
	if err != nil {
		s.writeError(w, r, err, "travel plan")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// JoinTravelPlan handles POST /travel-plans/share/{code}/join.
func (s *Server) JoinTravelPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.sharing.JoinByShareCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err, "shared travel plan")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) loadTravelPlan(w http.ResponseWriter, r *http.Request) (domain.TravelPlan, bool) {
	id, err := pathID(r)
	if err != nil {
		s.badRequest(w, err)
		return domain.TravelPlan{}, false
	}
	plan, err := s.travel.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "travel plan")
		return domain.TravelPlan{}, false
	}
	return plan, true
}
