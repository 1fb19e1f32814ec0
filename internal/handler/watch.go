package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkordes/tripbook/backend/internal/calendar"
	"github.com/pkordes/tripbook/backend/internal/domain"
)

// keepAlive is how often an idle event stream gets a comment line so
// proxies do not drop it.
const keepAlive = 25 * time.Second

// WatchTravelPlans handles GET /watch/travel-plans.
// It streams the caller's travel plans as server-sent events: one
// "travel-plans" event with the full list on connect and another after
// every change.
func (s *Server) WatchTravelPlans(w http.ResponseWriter, r *http.Request) {
	streamEvents(s, w, r, "travel-plans", func(onChange func([]domain.TravelPlan)) (func(), error) {
		return s.watch(r.Context(), onChange)
	})
}

// WatchCalendar handles GET /watch/calendar?date=YYYY-MM-DD&tz=Zone.
// It streams the timeline of the day as "calendar" events, again after
// every change to the caller's plans or travel plans.
func (s *Server) WatchCalendar(w http.ResponseWriter, r *http.Request) {
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
	streamEvents(s, w, r, "calendar", func(onChange func([]calendar.Item)) (func(), error) {
		return s.watchCalendar(r.Context(), day.Time, loc, onChange)
	})
}

// streamEvents subscribes and writes every delivered value as a server-sent
// event named event. Values the client has not received yet are replaced by
// newer ones, so a slow client never holds up deliveries.
func streamEvents[E any](s *Server, w http.ResponseWriter, r *http.Request, event string, subscribe func(onChange func(E)) (func(), error)) {
	ctx := r.Context()
	latest := make(chan E, 1)
	cancel, err := subscribe(func(v E) {
		for {
			select {
			case latest <- v:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	})
	if err != nil {
		s.writeError(w, r, err, "record")
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log.WarnContext(ctx, "event stream not flushable", "error", err)
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case v := <-latest:
			data, err := json.Marshal(v)
			if err != nil {
				s.log.ErrorContext(ctx, "encode event", "event", event, "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
