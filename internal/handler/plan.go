package handler

import (
	"net/http"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// ListPlans handles GET /plans. ?type=daily or ?type=outing narrows the list.
func (s *Server) ListPlans(w http.ResponseWriter, r *http.Request) {
	var where func(domain.Plan) bool
	if t := domain.PlanType(r.URL.Query().Get("type")); t != "" {
		where = func(p domain.Plan) bool { return p.PlanType == t }
	}
	listRecords(s, s.plans, w, r, where)
}

// CreatePlan handles POST /plans.
func (s *Server) CreatePlan(w http.ResponseWriter, r *http.Request) {
	createRecord(s, s.plans, w, r, "plan")
}

// GetPlan handles GET /plans/{id}.
func (s *Server) GetPlan(w http.ResponseWriter, r *http.Request) {
	getRecord(s, s.plans, w, r, "plan")
}

// UpdatePlan handles PUT /plans/{id}.
func (s *Server) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	updateRecord(s, s.plans, w, r, "plan")
}

// DeletePlan handles DELETE /plans/{id}.
func (s *Server) DeletePlan(w http.ResponseWriter, r *http.Request) {
	deleteRecord(s, s.plans, w, r, "plan")
}
