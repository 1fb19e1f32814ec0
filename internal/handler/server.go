// Package handler implements the HTTP API of the tripbook backend.
// All handlers are methods on Server. They are split into resource files
// (travel_plan.go, plan.go, calendar.go, ...) but share the Server struct
// so they can reach its dependencies.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/calendar"
	"github.com/pkordes/tripbook/backend/internal/domain"
)

// RecordServicer is the orchestrator contract the CRUD handlers depend on.
// service.Records satisfies it for every record kind.
type RecordServicer[T any] interface {
	Add(ctx context.Context, rec T, image []byte) (T, error)
	Update(ctx context.Context, rec T, image []byte) (T, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (T, error)
	List(ctx context.Context, where func(T) bool) ([]T, error)
}

// SharingServicer publishes and joins travel plans by share code.
type SharingServicer interface {
	UpdateShareCode(ctx context.Context, planID uuid.UUID, code, ownerID string) (domain.TravelPlan, error)
	JoinByShareCode(ctx context.Context, code string) (domain.TravelPlan, error)
}

// ImageLoader reads stored images by name.
type ImageLoader interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// TravelPlanWatcher subscribes onChange to the travel plans visible to the
// caller in ctx. The returned func cancels the subscription.
type TravelPlanWatcher func(ctx context.Context, onChange func([]domain.TravelPlan)) (cancel func(), err error)

// CalendarWatcher subscribes onChange to the timeline of day, in loc, for
// the caller in ctx. The returned func cancels the subscription.
type CalendarWatcher func(ctx context.Context, day time.Time, loc *time.Location, onChange func([]calendar.Item)) (cancel func(), err error)

// Deps lists the collaborators of a Server. Nil fields disable the routes
// that need them.
type Deps struct {
	TravelPlans   RecordServicer[domain.TravelPlan]
	Plans         RecordServicer[domain.Plan]
	VisitedPlaces RecordServicer[domain.VisitedPlace]
	Sharing       SharingServicer
	Images        ImageLoader
	Watch         TravelPlanWatcher
	WatchCalendar CalendarWatcher
	Log           *slog.Logger
}

// Server holds the handler dependencies.
type Server struct {
	travel        RecordServicer[domain.TravelPlan]
	plans         RecordServicer[domain.Plan]
	places        RecordServicer[domain.VisitedPlace]
	sharing       SharingServicer
	images        ImageLoader
	watch         TravelPlanWatcher
	watchCalendar CalendarWatcher
	log           *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		travel:        d.TravelPlans,
		plans:         d.Plans,
		places:        d.VisitedPlaces,
		sharing:       d.Sharing,
		images:        d.Images,
		watch:         d.Watch,
		watchCalendar: d.WatchCalendar,
		log:           log,
	}
}

// Routes returns the router serving every API endpoint.
// Wire it in main.go after the request-scoped middleware.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	if s.travel != nil {
		r.Route("/travel-plans", func(r chi.Router) {
			r.Get("/", s.ListTravelPlans)
			r.Post("/", s.CreateTravelPlan)
			if s.sharing != nil {
				r.Post("/share/{code}/join", s.JoinTravelPlan)
			}
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetTravelPlan)
				r.Put("/", s.UpdateTravelPlan)
				r.Delete("/", s.DeleteTravelPlan)
				r.Get("/budget", s.GetBudget)
				r.Get("/days/{n}", s.GetTravelPlanDay)
				if s.sharing != nil {
					r.Post("/share", s.ShareTravelPlan)
				}
			})
		})
	}
	if s.plans != nil {
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", s.ListPlans)
			r.Post("/", s.CreatePlan)
			r.Get("/{id}", s.GetPlan)
			r.Put("/{id}", s.UpdatePlan)
			r.Delete("/{id}", s.DeletePlan)
		})
	}
	if s.places != nil {
		r.Route("/visited-places", func(r chi.Router) {
			r.Get("/", s.ListVisitedPlaces)
			r.Post("/", s.CreateVisitedPlace)
			r.Get("/{id}", s.GetVisitedPlace)
			r.Put("/{id}", s.UpdateVisitedPlace)
			r.Delete("/{id}", s.DeleteVisitedPlace)
		})
	}
	if s.plans != nil && s.travel != nil {
		r.Get("/calendar", s.GetCalendar)
		r.Get("/calendar/marked", s.GetMarkedDays)
	}
	if s.images != nil {
		r.Get("/images/{name}", s.GetImage)
	}
	if s.watch != nil {
		r.Get("/watch/travel-plans", s.WatchTravelPlans)
	}
	if s.watchCalendar != nil {
		r.Get("/watch/calendar", s.WatchCalendar)
	}
	return r
}
