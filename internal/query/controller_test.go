package query_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/query"
	"github.com/pkordes/tripbook/backend/internal/store"
)

type fixture struct {
	ctl    *query.Controller
	plans  *store.Collection[domain.TravelPlan]
	places *store.Collection[domain.VisitedPlace]
}

func newFixture(t *testing.T, d query.Dispatcher) fixture {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctl := query.New(s, d, slog.New(slog.DiscardHandler))
	t.Cleanup(ctl.Close)
	return fixture{
		ctl:    ctl,
		plans:  store.NewCollection[domain.TravelPlan](s),
		places: store.NewCollection[domain.VisitedPlace](s),
	}
}

// deliveries records every result set handed to a subscriber as titles.
type deliveries struct {
	got [][]string
}

func (d *deliveries) onChange(plans []domain.TravelPlan) {
	titles := make([]string, len(plans))
	for i, p := range plans {
		titles[i] = p.Title
	}
	d.got = append(d.got, titles)
}

func (d *deliveries) last() []string {
	if len(d.got) == 0 {
		return nil
	}
	return d.got[len(d.got)-1]
}

func plan(title, user string, start int) domain.TravelPlan {
	d := time.Date(2024, 7, start, 0, 0, 0, 0, time.UTC)
	return domain.TravelPlan{Title: title, UserID: user, OwnerID: user, StartDate: d, EndDate: d, UpdatedAt: d}
}

func (f fixture) put(t *testing.T, p domain.TravelPlan) domain.TravelPlan {
	t.Helper()
	saved, err := f.plans.Put(context.Background(), p)
	require.NoError(t, err)
	return saved
}

func (f fixture) watch(t *testing.T, q query.Query[domain.TravelPlan], d *deliveries) *query.Subscription {
	t.Helper()
	sub, err := query.Watch(context.Background(), f.ctl, f.plans, q, d.onChange)
	require.NoError(t, err)
	return sub
}

func TestWatch_InitialDelivery(t *testing.T) {
	f := newFixture(t, query.Inline{})
	f.put(t, plan("Older", "alice", 1))
	f.put(t, plan("Newer", "alice", 5))
	f.put(t, plan("Not mine", "bob", 9))

	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{CallerID: "alice"}, d)

	require.Len(t, d.got, 1)
	assert.Equal(t, []string{"Newer", "Older"}, d.got[0])
}

func TestWatch_InitialDelivery_Empty(t *testing.T) {
	f := newFixture(t, query.Inline{})

	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{CallerID: "alice"}, d)

	require.Len(t, d.got, 1)
	assert.NotNil(t, d.got[0])
	assert.Empty(t, d.got[0])
}

func TestWatch_DeliversAfterMatchingPut(t *testing.T) {
	f := newFixture(t, query.Inline{})
	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{CallerID: "alice"}, d)

	f.put(t, plan("Kyoto", "alice", 1))

	require.Len(t, d.got, 2)
	assert.Equal(t, []string{"Kyoto"}, d.last())
}

func TestWatch_TiesKeepInsertionOrder(t *testing.T) {
	f := newFixture(t, query.Inline{})
	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{CallerID: "alice"}, d)

	f.put(t, plan("A", "alice", 3))
	f.put(t, plan("B", "alice", 3))

	assert.Equal(t, []string{"A", "B"}, d.last())
}

func TestWatch_IgnoresUnrelatedWrites(t *testing.T) {
	f := newFixture(t, query.Inline{})
	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{
		CallerID: "alice",
		Where:    func(p domain.TravelPlan) bool { return strings.HasPrefix(p.Title, "K") },
	}, d)

	f.put(t, plan("Lisbon", "alice", 1)) // predicate false
	f.put(t, plan("Kobe", "bob", 1))     // not visible
	_, err := f.places.Put(context.Background(), domain.VisitedPlace{Title: "Kiyomizu", UserID: "alice"})
	require.NoError(t, err) // other kind

	assert.Len(t, d.got, 1, "only the initial delivery")
}

func TestWatch_RecordLeavingResult(t *testing.T) {
	f := newFixture(t, query.Inline{})
	kyoto := f.put(t, plan("Kyoto", "alice", 1))

	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{
		CallerID: "alice",
		Where:    func(p domain.TravelPlan) bool { return strings.HasPrefix(p.Title, "K") },
	}, d)
	require.Equal(t, []string{"Kyoto"}, d.last())

	kyoto.Title = "Osaka"
	f.put(t, kyoto)

	require.Len(t, d.got, 2, "a record that was in the result always triggers")
	assert.Empty(t, d.last())
}

func TestWatch_Delete(t *testing.T) {
	f := newFixture(t, query.Inline{})
	kyoto := f.put(t, plan("Kyoto", "alice", 1))
	other := f.put(t, plan("Other", "bob", 1))

	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{CallerID: "alice"}, d)

	_, err := f.plans.Delete(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Len(t, d.got, 1, "deleting a record outside the result is silent")

	_, err = f.plans.Delete(context.Background(), kyoto.ID)
	require.NoError(t, err)
	require.Len(t, d.got, 2)
	assert.Empty(t, d.last())
}

func TestWatch_RemoteChangesDeliverToo(t *testing.T) {
	f := newFixture(t, query.Inline{})
	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{CallerID: "alice"}, d)

	p := plan("Shared with me", "bob", 2)
	p.SharedWith = []string{"alice"}
	saved, err := f.plans.Put(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, d.got, 2)

	saved.Title = "Renamed remotely"
	saved.UpdatedAt = saved.UpdatedAt.Add(time.Hour)
	env, err := f.plans.Encode(saved)
	require.NoError(t, err)
	_, err = f.plans.Store().ApplyRemote(context.Background(), store.Change{
		Op: store.OpPut, Kind: env.Kind, ID: saved.ID, UpdatedAt: saved.UpdatedAt, Envelope: env,
	})
	require.NoError(t, err)

	require.Len(t, d.got, 3)
	assert.Equal(t, []string{"Renamed remotely"}, d.last())
}

func TestSubscription_Cancel(t *testing.T) {
	f := newFixture(t, query.Inline{})
	d := &deliveries{}
	sub := f.watch(t, query.Query[domain.TravelPlan]{CallerID: "alice"}, d)
	require.Equal(t, 1, f.ctl.Len())

	sub.Cancel()
	sub.Cancel()
	f.put(t, plan("After cancel", "alice", 1))

	assert.Len(t, d.got, 1)
	assert.Equal(t, 0, f.ctl.Len())
}

func TestSubscription_CancelFromDelivery(t *testing.T) {
	f := newFixture(t, query.Inline{})
	var sub *query.Subscription
	calls := 0
	sub, err := query.Watch(context.Background(), f.ctl, f.plans, query.Query[domain.TravelPlan]{CallerID: "alice"},
		func([]domain.TravelPlan) {
			calls++
			if sub != nil {
				sub.Cancel()
			}
		})
	require.NoError(t, err)

	f.put(t, plan("One", "alice", 1))
	f.put(t, plan("Two", "alice", 2))

	assert.Equal(t, 2, calls, "initial delivery, then the one that cancelled")
	assert.Equal(t, 0, f.ctl.Len())
}

// A write that commits while the initial query runs is delivered, and the
// older initial result is not delivered after it.
func TestWatch_WriteDuringInitialQuery(t *testing.T) {
	f := newFixture(t, query.Inline{})
	f.put(t, plan("A", "alice", 2))

	wrote := false
	d := &deliveries{}
	f.watch(t, query.Query[domain.TravelPlan]{
		CallerID: "alice",
		Where: func(domain.TravelPlan) bool {
			if !wrote {
				wrote = true
				f.put(t, plan("B", "alice", 1))
			}
			return true
		},
	}, d)

	all, err := f.plans.Query(context.Background(), store.Filter{CallerID: "alice"}, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotEmpty(t, d.got)
	assert.Equal(t, []string{"A", "B"}, d.last())
	for _, got := range d.got[:len(d.got)-1] {
		assert.NotEqual(t, []string{"A", "B"}, got, "nothing follows the newest result")
	}
}

// Deliveries already queued on the loop when Cancel returns never reach
// the callback.
func TestSubscription_CancelDropsQueuedDeliveries(t *testing.T) {
	loop := query.NewLoop()
	t.Cleanup(loop.Close)
	f := newFixture(t, loop)

	got := make(chan []domain.TravelPlan, 8)
	sub, err := query.Watch(context.Background(), f.ctl, f.plans, query.Query[domain.TravelPlan]{CallerID: "alice"},
		func(plans []domain.TravelPlan) { got <- plans })
	require.NoError(t, err)
	receive(t, got)

	gate := make(chan struct{})
	loop.Dispatch(func() { <-gate })
	f.put(t, plan("Queued", "alice", 1)) // refresh waits behind the gate

	sub.Cancel()
	close(gate)

	drained := make(chan struct{})
	loop.Dispatch(func() { close(drained) })
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain")
	}
	assert.Empty(t, got, "no delivery after Cancel returned")
}

// Cancel racing a steady stream of writes: once it returns, the callback
// is never entered again.
func TestSubscription_CancelFromOtherGoroutine(t *testing.T) {
	loop := query.NewLoop()
	t.Cleanup(loop.Close)
	f := newFixture(t, loop)

	var mu sync.Mutex
	cancelled, late := false, 0
	sub, err := query.Watch(context.Background(), f.ctl, f.plans, query.Query[domain.TravelPlan]{CallerID: "alice"},
		func([]domain.TravelPlan) {
			mu.Lock()
			if cancelled {
				late++
			}
			mu.Unlock()
		})
	require.NoError(t, err)

	for i := range 20 {
		f.put(t, plan("Trip", "alice", i%28+1))
	}
	sub.Cancel()
	mu.Lock()
	cancelled = true
	mu.Unlock()
	for i := range 5 {
		f.put(t, plan("After", "alice", i+1))
	}

	drained := make(chan struct{})
	loop.Dispatch(func() { close(drained) })
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, late)
}

func TestWatch_LoopDispatcher(t *testing.T) {
	loop := query.NewLoop()
	t.Cleanup(loop.Close)
	f := newFixture(t, loop)

	got := make(chan []domain.TravelPlan, 8)
	sub, err := query.Watch(context.Background(), f.ctl, f.plans, query.Query[domain.TravelPlan]{CallerID: "alice"},
		func(plans []domain.TravelPlan) { got <- plans })
	require.NoError(t, err)
	t.Cleanup(sub.Cancel)

	assert.Empty(t, receive(t, got))

	f.put(t, plan("Kyoto", "alice", 1))
	res := receive(t, got)
	require.Len(t, res, 1)
	assert.Equal(t, "Kyoto", res[0].Title)
}

func receive(t *testing.T, ch <-chan []domain.TravelPlan) []domain.TravelPlan {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery within 5s")
		return nil
	}
}

func TestLoop_RunsInOrder(t *testing.T) {
	loop := query.NewLoop()
	t.Cleanup(loop.Close)

	done := make(chan struct{})
	var order []int
	for i := range 5 {
		loop.Dispatch(func() { order = append(order, i) })
	}
	loop.Dispatch(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
