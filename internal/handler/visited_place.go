package handler

import (
	"net/http"
	"slices"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// ListVisitedPlaces handles GET /visited-places.
// ?tag= and ?travel_plan_id= narrow the list; both may be combined.
func (s *Server) ListVisitedPlaces(w http.ResponseWriter, r *http.Request) {
	planID, byPlan, err := uuidQuery(r, "travel_plan_id")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	tag := domain.Slugify(r.URL.Query().Get("tag"))

	var where func(domain.VisitedPlace) bool
	if tag != "" || byPlan {
		where = func(v domain.VisitedPlace) bool {
			if tag != "" && !slices.Contains(v.Tags, tag) {
				return false
			}
			if byPlan {
				id, ok := v.TravelPlanID.Get()
				return ok && id == planID
			}
			return true
		}
	}
	listRecords(s, s.places, w, r, where)
}

// CreateVisitedPlace handles POST /visited-places.
func (s *Server) CreateVisitedPlace(w http.ResponseWriter, r *http.Request) {
	createRecord(s, s.places, w, r, "visited place")
}

// GetVisitedPlace handles GET /visited-places/{id}.
func (s *Server) GetVisitedPlace(w http.ResponseWriter, r *http.Request) {
	getRecord(s, s.places, w, r, "visited place")
}

// UpdateVisitedPlace handles PUT /visited-places/{id}.
func (s *Server) UpdateVisitedPlace(w http.ResponseWriter, r *http.Request) {
	updateRecord(s, s.places, w, r, "visited place")
}

// DeleteVisitedPlace handles DELETE /visited-places/{id}.
func (s *Server) DeleteVisitedPlace(w http.ResponseWriter, r *http.Request) {
	deleteRecord(s, s.places, w, r, "visited place")
}
