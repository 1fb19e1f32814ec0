package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// newTestStore opens a fresh SQLite store in a per-test temp directory.
// The database is closed automatically when the test finishes.
func newTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"), opts...)
	require.NoError(t, err, "open store")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recorder collects every change the store announces.
type recorder struct {
	changes []store.Change
}

func (r *recorder) observe(c store.Change) { r.changes = append(r.changes, c) }

func planFixture(title string, start time.Time) domain.TravelPlan {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	return domain.TravelPlan{
		Title:     title,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 2),
		UserID:    "alice",
		OwnerID:   "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func jul(d int) time.Time { return time.Date(2024, 7, d, 0, 0, 0, 0, time.UTC) }

func TestCollection_PutAssignsIDAndRoundTrips(t *testing.T) {
	plans := store.NewCollection[domain.TravelPlan](newTestStore(t))
	ctx := context.Background()

	in := planFixture("Kyoto", jul(10))
	saved, err := plans.Put(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, saved.ID, "store should assign an id")

	got, err := plans.Get(ctx, saved.ID)
	require.NoError(t, err)

	in.ID = saved.ID
	assert.Equal(t, in.Title, got.Title)
	assert.True(t, got.StartDate.Equal(in.StartDate))
	assert.True(t, got.EndDate.Equal(in.EndDate))
	assert.Equal(t, in.UserID, got.UserID)
}

func TestStore_Get_NotFound(t *testing.T) {
	plans := store.NewCollection[domain.TravelPlan](newTestStore(t))

	_, err := plans.Get(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Put_ReplaceKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	plans := store.NewCollection[domain.TravelPlan](s)
	ctx := context.Background()

	first, err := plans.Put(ctx, planFixture("First", jul(10)))
	require.NoError(t, err)
	_, err = plans.Put(ctx, planFixture("Second", jul(10)))
	require.NoError(t, err)

	first.Title = "First, renamed"
	_, err = plans.Put(ctx, first)
	require.NoError(t, err)

	got, err := plans.Query(ctx, store.Filter{CallerID: "alice"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "First, renamed", got[0].Title, "ties on start date keep insertion order")
	assert.Equal(t, "Second", got[1].Title)
}

func TestStore_Query_SortsByStartDateDescending(t *testing.T) {
	plans := store.NewCollection[domain.TravelPlan](newTestStore(t))
	ctx := context.Background()

	for _, p := range []domain.TravelPlan{
		planFixture("July 5", jul(5)),
		planFixture("July 20", jul(20)),
		planFixture("July 12", jul(12)),
	} {
		_, err := plans.Put(ctx, p)
		require.NoError(t, err)
	}

	got, err := plans.Query(ctx, store.Filter{CallerID: "alice"}, nil)
	require.NoError(t, err)

	titles := make([]string, len(got))
	for i, p := range got {
		titles[i] = p.Title
	}
	assert.Equal(t, []string{"July 20", "July 12", "July 5"}, titles)
}

func TestStore_Query_Visibility(t *testing.T) {
	plans := store.NewCollection[domain.TravelPlan](newTestStore(t))
	ctx := context.Background()

	mine := planFixture("Mine", jul(1))
	owned := planFixture("Owned", jul(2))
	owned.UserID, owned.OwnerID = "bob", "alice"
	shared := planFixture("Shared", jul(3))
	shared.UserID, shared.OwnerID, shared.SharedWith = "bob", "bob", []string{"carol", "alice"}
	hidden := planFixture("Hidden", jul(4))
	hidden.UserID, hidden.OwnerID = "bob", "bob"

	for _, p := range []domain.TravelPlan{mine, owned, shared, hidden} {
		_, err := plans.Put(ctx, p)
		require.NoError(t, err)
	}

	got, err := plans.Query(ctx, store.Filter{CallerID: "alice"}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, p := range got {
		assert.NotEqual(t, "Hidden", p.Title)
	}

	all, err := plans.Query(ctx, store.Filter{}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4, "unscoped filter sees every record")
}

func TestStore_Query_Predicate(t *testing.T) {
	plans := store.NewCollection[domain.TravelPlan](newTestStore(t))
	ctx := context.Background()

	for _, title := range []string{"Kyoto", "Lisbon", "Kyushu"} {
		_, err := plans.Put(ctx, planFixture(title, jul(1)))
		require.NoError(t, err)
	}

	got, err := plans.Query(ctx, store.Filter{CallerID: "alice"}, func(p domain.TravelPlan) bool {
		return p.Title[0] == 'K'
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_Put_ShareCodeConflict(t *testing.T) {
	plans := store.NewCollection[domain.TravelPlan](newTestStore(t))
	ctx := context.Background()

	a := planFixture("A", jul(1)).Share("SAME", "alice")
	b := planFixture("B", jul(2)).Share("SAME", "alice")

	_, err := plans.Put(ctx, a)
	require.NoError(t, err)
	_, err = plans.Put(ctx, b)

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_Query_ByShareCode(t *testing.T) {
	plans := store.NewCollection[domain.TravelPlan](newTestStore(t))
	ctx := context.Background()

	shared, err := plans.Put(ctx, planFixture("Shared", jul(1)).Share("JOINME", "alice"))
	require.NoError(t, err)
	_, err = plans.Put(ctx, planFixture("Other", jul(1)))
	require.NoError(t, err)

	got, err := plans.Query(ctx, store.Filter{ShareCode: "JOINME"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shared.ID, got[0].ID)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	rec := &recorder{}
	s.Observe(rec.observe)
	plans := store.NewCollection[domain.TravelPlan](s)
	ctx := context.Background()

	saved, err := plans.Put(ctx, planFixture("Kyoto", jul(10)))
	require.NoError(t, err)

	deleted, err := plans.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = plans.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete finds nothing")

	_, err = plans.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.Len(t, rec.changes, 2, "one put and one delete; the no-op delete is silent")
	assert.Equal(t, store.OpPut, rec.changes[0].Op)
	assert.Equal(t, store.OpDelete, rec.changes[1].Op)
	assert.Equal(t, store.OriginLocal, rec.changes[1].Origin)
}

func TestStore_Observe_Cancel(t *testing.T) {
	s := newTestStore(t)
	rec := &recorder{}
	cancel := s.Observe(rec.observe)
	cancel()

	_, err := store.NewCollection[domain.TravelPlan](s).Put(context.Background(), planFixture("x", jul(1)))
	require.NoError(t, err)

	assert.Empty(t, rec.changes)
}

func TestStore_ApplyRemote_LastWriterWins(t *testing.T) {
	s := newTestStore(t)
	plans := store.NewCollection[domain.TravelPlan](s)
	ctx := context.Background()

	local, err := plans.Put(ctx, planFixture("Local", jul(10)))
	require.NoError(t, err)

	older := local
	older.Title = "Older remote"
	older.UpdatedAt = local.UpdatedAt.Add(-time.Minute)
	applied, err := s.ApplyRemote(ctx, remotePut(t, plans, older))
	require.NoError(t, err)
	assert.False(t, applied, "older remote write must lose")

	same := local
	same.Title = "Echo"
	applied, err = s.ApplyRemote(ctx, remotePut(t, plans, same))
	require.NoError(t, err)
	assert.False(t, applied, "an equal timestamp is our own write echoing back")

	newer := local
	newer.Title = "Newer remote"
	newer.UpdatedAt = local.UpdatedAt.Add(time.Minute)
	applied, err = s.ApplyRemote(ctx, remotePut(t, plans, newer))
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := plans.Get(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Newer remote", got.Title)
}

func TestStore_ApplyRemote_TombstoneBlocksResurrection(t *testing.T) {
	deletedAt := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.WithClock(func() time.Time { return deletedAt }))
	plans := store.NewCollection[domain.TravelPlan](s)
	ctx := context.Background()

	saved, err := plans.Put(ctx, planFixture("Gone", jul(10)))
	require.NoError(t, err)
	_, err = plans.Delete(ctx, saved.ID)
	require.NoError(t, err)

	stale := saved
	stale.UpdatedAt = deletedAt.Add(-time.Hour)
	applied, err := s.ApplyRemote(ctx, remotePut(t, plans, stale))
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = plans.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ApplyRemote_DeleteNotifiesAsRemote(t *testing.T) {
	s := newTestStore(t)
	plans := store.NewCollection[domain.TravelPlan](s)
	ctx := context.Background()

	saved, err := plans.Put(ctx, planFixture("Shared", jul(10)))
	require.NoError(t, err)

	rec := &recorder{}
	s.Observe(rec.observe)

	applied, err := s.ApplyRemote(ctx, store.Change{
		Op:        store.OpDelete,
		Kind:      domain.KindTravelPlan,
		ID:        saved.ID,
		UpdatedAt: saved.UpdatedAt.Add(time.Second),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	require.Len(t, rec.changes, 1)
	assert.Equal(t, store.OriginRemote, rec.changes[0].Origin)
	assert.Equal(t, store.OpDelete, rec.changes[0].Op)
}

func TestStore_Reopen_KeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	ctx := context.Background()

	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	saved, err := store.NewCollection[domain.TravelPlan](s).Put(ctx, planFixture("Durable", jul(1)))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := store.NewCollection[domain.TravelPlan](s).Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Durable", got.Title)
}

func remotePut(t *testing.T, c *store.Collection[domain.TravelPlan], p domain.TravelPlan) store.Change {
	t.Helper()
	env, err := c.Encode(p)
	require.NoError(t, err)
	return store.Change{Op: store.OpPut, Kind: env.Kind, ID: p.ID, UpdatedAt: p.UpdatedAt, Envelope: env}
}
