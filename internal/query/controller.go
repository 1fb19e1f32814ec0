// Package query keeps live views over the entity store. A subscriber gets
// the full matching result set once when it subscribes and again after
// every write that could change it.
package query

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// watcher is the type-erased side of a subscription the controller fans
// changes out to.
type watcher interface {
	kind() domain.Kind
	consider(c store.Change)
}

// Controller routes entity store changes to live subscriptions.
type Controller struct {
	dispatch Dispatcher
	log      *slog.Logger

	mu       sync.Mutex
	watchers map[uint64]watcher
	nextID   uint64

	stopObserving func()
}

// New registers a Controller as an observer of s. Deliveries run on d.
func New(s *store.Store, d Dispatcher, log *slog.Logger) *Controller {
	c := &Controller{
		dispatch: d,
		log:      log,
		watchers: make(map[uint64]watcher),
	}
	c.stopObserving = s.Observe(c.observe)
	return c
}

// Close detaches the controller from the store. Existing subscriptions
// receive no further deliveries.
func (c *Controller) Close() {
	c.stopObserving()
	c.mu.Lock()
	c.watchers = make(map[uint64]watcher)
	c.mu.Unlock()
}

// Dispatch runs fn on the controller's dispatcher, in line with deliveries.
func (c *Controller) Dispatch(fn func()) {
	c.dispatch.Dispatch(fn)
}

// Len returns the number of live subscriptions.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watchers)
}

func (c *Controller) add(w watcher) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = w
	return id
}

func (c *Controller) remove(id uint64) {
	c.mu.Lock()
	delete(c.watchers, id)
	c.mu.Unlock()
}

func (c *Controller) observe(ch store.Change) {
	c.mu.Lock()
	ws := make([]watcher, 0, len(c.watchers))
	for _, w := range c.watchers {
		if w.kind() == ch.Kind {
			ws = append(ws, w)
		}
	}
	c.mu.Unlock()

	for _, w := range ws {
		w.consider(ch)
	}
}

// Query describes a live result set.
type Query[T any] struct {
	// CallerID limits results to records visible to the caller.
	// Empty means every record.
	CallerID string
	// Where further filters results; nil matches everything.
	Where func(T) bool
	// Sort defaults to start date descending with ties in insertion order.
	Sort store.Sort
}

func (q Query[T]) filter() store.Filter {
	return store.Filter{CallerID: q.CallerID, Sort: q.Sort}
}

// Subscription is a handle on a live query.
type Subscription struct {
	cancel func()
}

// Cancel stops the subscription. Once Cancel returns the callback is not
// running and will not run again, and the controller has forgotten the
// subscription. Called from inside the callback it returns at once.
// Calling it more than once is fine.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Watch subscribes onChange to the records of coll matching q. The current
// result is delivered first; after that a fresh full result follows every
// write of the same kind that touches a record which matches q or was part
// of the previous result. The initial query runs before Watch returns, so
// its errors are reported here. A write racing the initial query may be
// delivered in its place: a result set is never delivered after a newer one.
func Watch[T domain.Record[T]](ctx context.Context, ctl *Controller, coll *store.Collection[T], q Query[T], onChange func([]T)) (*Subscription, error) {
	w := &watch[T]{
		ctl:      ctl,
		coll:     coll,
		q:        q,
		onChange: onChange,
	}
	w.id = ctl.add(w)

	seq := w.begin()
	recs, err := coll.Query(ctx, q.filter(), q.Where)
	if err != nil {
		ctl.remove(w.id)
		return nil, fmt.Errorf("query.Watch: %w", err)
	}
	if w.settle(seq, recs) {
		ctl.dispatch.Dispatch(func() { w.deliver(seq, recs) })
	}

	return &Subscription{cancel: w.cancel}, nil
}

type watch[T domain.Record[T]] struct {
	ctl      *Controller
	coll     *store.Collection[T]
	q        Query[T]
	onChange func([]T)
	id       uint64

	mu        sync.Mutex
	ids       map[uuid.UUID]struct{}
	scheduled bool
	cancelled bool
	deliverer uint64 // goroutine inside the callback, 0 when none
	started   uint64 // queries begun
	settled   uint64 // query whose result ids holds
	shown     uint64 // query whose result was last delivered

	// deliverMu is held from the cancelled check until the callback returns.
	deliverMu sync.Mutex
}

func (w *watch[T]) kind() domain.Kind { return w.coll.Kind() }

// begin numbers a query about to run. Later numbers see newer store state.
func (w *watch[T]) begin() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started++
	return w.started
}

// settle records the result of query seq unless a later query already
// finished, and reports whether it should be delivered.
func (w *watch[T]) settle(seq uint64, recs []T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled || seq < w.settled {
		return false
	}
	w.settled = seq
	w.ids = idsOf(recs)
	return true
}

// consider schedules a refresh when c could change the result set.
// Refreshes already waiting to run absorb later changes.
func (w *watch[T]) consider(c store.Change) {
	w.mu.Lock()
	if w.cancelled || w.scheduled {
		w.mu.Unlock()
		return
	}
	_, affected := w.ids[c.ID]
	w.mu.Unlock()

	if !affected && c.Op == store.OpPut {
		affected = w.matches(c.Envelope)
	}
	if !affected {
		return
	}

	w.mu.Lock()
	if w.cancelled || w.scheduled {
		w.mu.Unlock()
		return
	}
	w.scheduled = true
	w.mu.Unlock()

	w.ctl.dispatch.Dispatch(w.refresh)
}

func (w *watch[T]) matches(env store.Envelope) bool {
	if w.q.CallerID != "" && !env.Meta.VisibleTo(w.q.CallerID) {
		return false
	}
	if w.q.Where == nil {
		return true
	}
	rec, err := w.coll.Decode(env)
	if err != nil {
		w.ctl.log.Warn("query: undecodable change", "kind", env.Kind, "id", env.Meta.ID, "error", err)
		return false
	}
	return w.q.Where(rec)
}

func (w *watch[T]) refresh() {
	w.mu.Lock()
	w.scheduled = false
	cancelled := w.cancelled
	w.started++
	seq := w.started
	w.mu.Unlock()
	if cancelled {
		return
	}

	recs, err := w.coll.Query(context.Background(), w.q.filter(), w.q.Where)
	if err != nil {
		w.ctl.log.Error("query: refresh failed", "kind", w.kind(), "error", err)
		return
	}
	if w.settle(seq, recs) {
		w.deliver(seq, recs)
	}
}

// deliver hands the result of query seq to the subscriber unless the
// subscription is cancelled or a newer result was delivered already.
func (w *watch[T]) deliver(seq uint64, recs []T) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	w.mu.Lock()
	if w.cancelled || seq <= w.shown {
		w.mu.Unlock()
		return
	}
	w.shown = seq
	w.deliverer = goroutineID()
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.deliverer = 0
		w.mu.Unlock()
	}()
	w.onChange(recs)
}

func (w *watch[T]) cancel() {
	w.mu.Lock()
	w.cancelled = true
	reentrant := w.deliverer != 0 && w.deliverer == goroutineID()
	w.mu.Unlock()
	w.ctl.remove(w.id)

	if !reentrant {
		// Wait out a delivery in progress on another goroutine.
		w.deliverMu.Lock()
		w.deliverMu.Unlock() //nolint:staticcheck // barrier
	}
}

// goroutineID returns the id of the calling goroutine, read from the
// header line of its stack trace ("goroutine 42 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func idsOf[T domain.Record[T]](recs []T) map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{}, len(recs))
	for _, r := range recs {
		ids[r.Meta().ID] = struct{}{}
	}
	return ids
}
