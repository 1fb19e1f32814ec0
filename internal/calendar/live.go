package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/query"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// Live is a timeline kept current by two query subscriptions, one per
// source kind.
type Live struct {
	ctl      *query.Controller
	loc      *time.Location
	onChange func([]Item)

	mu         sync.Mutex
	selected   time.Time
	plans      []domain.Plan
	travel     []domain.TravelPlan
	havePlans  bool
	haveTravel bool
	subs       []*query.Subscription
}

// Watch delivers the timeline of selected for callerID, then a fresh one
// whenever a visible plan or travel plan changes. Nothing is delivered until
// both sources have reported once.
func Watch(
	ctx context.Context,
	ctl *query.Controller,
	plans *store.Collection[domain.Plan],
	travel *store.Collection[domain.TravelPlan],
	callerID string,
	selected time.Time,
	loc *time.Location,
	onChange func([]Item),
) (*Live, error) {
	if loc == nil {
		loc = time.UTC
	}
	l := &Live{ctl: ctl, loc: loc, onChange: onChange, selected: selected}

	ps, err := query.Watch(ctx, ctl, plans, query.Query[domain.Plan]{CallerID: callerID}, l.setPlans)
	if err != nil {
		return nil, fmt.Errorf("calendar.Watch: %w", err)
	}
	ts, err := query.Watch(ctx, ctl, travel, query.Query[domain.TravelPlan]{CallerID: callerID}, l.setTravel)
	if err != nil {
		ps.Cancel()
		return nil, fmt.Errorf("calendar.Watch: %w", err)
	}

	l.mu.Lock()
	l.subs = []*query.Subscription{ps, ts}
	l.mu.Unlock()
	return l, nil
}

// Select switches the live timeline to another day and delivers it.
func (l *Live) Select(day time.Time) {
	l.mu.Lock()
	l.selected = day
	l.mu.Unlock()
	l.ctl.Dispatch(l.emit)
}

// Cancel stops both subscriptions.
func (l *Live) Cancel() {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

func (l *Live) setPlans(plans []domain.Plan) {
	l.mu.Lock()
	l.plans, l.havePlans = plans, true
	l.mu.Unlock()
	l.emit()
}

func (l *Live) setTravel(travel []domain.TravelPlan) {
	l.mu.Lock()
	l.travel, l.haveTravel = travel, true
	l.mu.Unlock()
	l.emit()
}

func (l *Live) emit() {
	l.mu.Lock()
	if !l.havePlans || !l.haveTravel {
		l.mu.Unlock()
		return
	}
	items := Timeline(l.selected, l.plans, l.travel, l.loc)
	l.mu.Unlock()
	l.onChange(items)
}
