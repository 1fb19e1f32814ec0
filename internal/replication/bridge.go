// Package replication mirrors local writes to the remote store and pulls
// remote writes back in. Local writes never wait for it: pushes are queued,
// coalesced per record and retried until they succeed.
package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// Remote is the account-scoped cloud store.
type Remote interface {
	// Push writes one change. Older writes than the stored copy are ignored.
	Push(ctx context.Context, account string, c store.Change) error
	// Pull returns changes visible to account after cursor, and the next cursor.
	Pull(ctx context.Context, account string, cursor int64, limit int) ([]store.Change, int64, error)
	// FindByShareCode returns the live record of kind holding code.
	FindByShareCode(ctx context.Context, kind domain.Kind, code string) (store.Change, error)
}

// Local is the part of the entity store the bridge writes through.
type Local interface {
	ApplyRemote(ctx context.Context, c store.Change) (bool, error)
	Query(ctx context.Context, kind domain.Kind, f store.Filter) ([]store.Envelope, error)
}

// Config tunes the bridge. Zero values fall back to the defaults below.
type Config struct {
	Account      string
	PullInterval time.Duration // default 30s
	PullBatch    int           // default 500
	RetryBase    time.Duration // default 500ms
	RetryCap     time.Duration // default 5m
}

func (c Config) withDefaults() Config {
	if c.PullInterval <= 0 {
		c.PullInterval = 30 * time.Second
	}
	if c.PullBatch <= 0 {
		c.PullBatch = 500
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 5 * time.Minute
	}
	return c
}

type recordKey struct {
	kind domain.Kind
	id   uuid.UUID
}

// Bridge is the replication worker. Create it with New, register Observe on
// the entity store and call Run.
type Bridge struct {
	remote  Remote
	local   Local
	cfg     Config
	log     *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	pending  map[recordKey]store.Change
	order    []recordKey
	inflight bool
	drained  chan struct{} // closed when the queue empties; nil while idle
	wake     chan struct{}

	cursorMu sync.Mutex
	cursor   int64
}

// New constructs a Bridge. metrics may be nil.
func New(remote Remote, local Local, cfg Config, log *slog.Logger, metrics *Metrics) *Bridge {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Bridge{
		remote:  remote,
		local:   local,
		cfg:     cfg.withDefaults(),
		log:     log,
		metrics: metrics,
		pending: make(map[recordKey]store.Change),
		wake:    make(chan struct{}, 1),
	}
}

// Observe is the entity store observer. Changes that came from the remote
// store are not sent back.
func (b *Bridge) Observe(c store.Change) {
	if c.Origin == store.OriginRemote {
		return
	}
	b.Enqueue(c)
}

// Enqueue schedules c for pushing and returns immediately. A change still
// waiting for the same record is replaced, keeping its place in line.
func (b *Bridge) Enqueue(c store.Change) {
	k := recordKey{kind: c.Kind, id: c.ID}

	b.mu.Lock()
	if _, ok := b.pending[k]; !ok {
		b.order = append(b.order, k)
	}
	b.pending[k] = c
	if b.drained == nil {
		b.drained = make(chan struct{})
	}
	b.metrics.QueueDepth.Set(float64(len(b.order)))
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Seed queues a put for every local record so the remote store catches up
// with writes made while the process was offline.
func (b *Bridge) Seed(ctx context.Context) error {
	for _, kind := range domain.Kinds {
		envs, err := b.local.Query(ctx, kind, store.Filter{Sort: store.SortInsertion})
		if err != nil {
			return fmt.Errorf("replication.Bridge.Seed: %w", err)
		}
		for _, env := range envs {
			b.Enqueue(store.Change{
				Op:        store.OpPut,
				Kind:      kind,
				ID:        env.Meta.ID,
				UpdatedAt: env.Meta.UpdatedAt,
				Envelope:  env,
			})
		}
	}
	return nil
}

// Run pushes queued changes and pulls remote changes every PullInterval
// until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.pushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.pullLoop(ctx)
	}()
	wg.Wait()
}

// Flush blocks until every queued change has been pushed or ctx is done.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	drained := b.drained
	b.mu.Unlock()
	if drained == nil {
		return nil
	}
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of records waiting to be pushed.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

func (b *Bridge) pushLoop(ctx context.Context) {
	for {
		c, ok := b.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-b.wake:
				continue
			}
		}
		b.push(ctx, c)
		b.done()
		if ctx.Err() != nil {
			return
		}
	}
}

// next pops the oldest queued change.
func (b *Bridge) next() (store.Change, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return store.Change{}, false
	}
	k := b.order[0]
	b.order = b.order[1:]
	c := b.pending[k]
	delete(b.pending, k)
	b.inflight = true
	b.metrics.QueueDepth.Set(float64(len(b.order)))
	return c, true
}

func (b *Bridge) done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight = false
	if len(b.order) == 0 && b.drained != nil {
		close(b.drained)
		b.drained = nil
	}
}

// push retries c with capped exponential backoff until it succeeds, the
// remote rejects it for good, or ctx ends.
func (b *Bridge) push(ctx context.Context, c store.Change) {
	backoff := retry.WithCappedDuration(b.cfg.RetryCap,
		retry.WithJitterPercent(10, retry.NewExponential(b.cfg.RetryBase)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := b.remote.Push(ctx, b.cfg.Account, c)
		if err == nil {
			return nil
		}
		b.metrics.PushFailures.Inc()
		if permanent(err) {
			return err
		}
		b.log.Warn("push failed, retrying",
			"kind", c.Kind,
			"id", c.ID,
			"op", c.Op,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctx.Err() == nil {
			b.log.Error("push dropped",
				"kind", c.Kind,
				"id", c.ID,
				"error", fmt.Errorf("%w: %w", domain.ErrReplication, err),
			)
		}
		return
	}
	b.metrics.Pushed.Inc()
}

// permanent reports errors that no retry can fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrConflict)
}

func (b *Bridge) pullLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PullInterval)
	defer ticker.Stop()
	for {
		if _, err := b.Pull(ctx); err != nil && ctx.Err() == nil {
			b.log.Warn("pull failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Pull fetches every remote change since the last pull and writes it
// through the entity store. It returns how many changes were applied.
// A change the store refuses for good (a share code already held locally,
// a malformed record) is logged and skipped so later changes still arrive;
// other errors stop the pull without moving the cursor.
func (b *Bridge) Pull(ctx context.Context) (int, error) {
	b.cursorMu.Lock()
	defer b.cursorMu.Unlock()

	applied := 0
	for {
		changes, next, err := b.remote.Pull(ctx, b.cfg.Account, b.cursor, b.cfg.PullBatch)
		if err != nil {
			return applied, fmt.Errorf("replication.Bridge.Pull: %w: %w", domain.ErrReplication, err)
		}
		for _, c := range changes {
			ok, err := b.local.ApplyRemote(ctx, c)
			if err != nil && permanent(err) {
				// Retrying would stall the feed on this change forever.
				b.metrics.PullRejected.Inc()
				b.log.Error("pulled change rejected",
					"kind", c.Kind,
					"id", c.ID,
					"op", c.Op,
					"error", fmt.Errorf("%w: %w", domain.ErrReplication, err),
				)
				continue
			}
			if err != nil {
				return applied, fmt.Errorf("replication.Bridge.Pull: apply %s %s: %w", c.Kind, c.ID, err)
			}
			if ok {
				applied++
				b.metrics.Pulled.Inc()
			}
		}
		b.cursor = next
		if len(changes) < b.cfg.PullBatch {
			return applied, nil
		}
	}
}

// Cursor returns the position of the last completed pull.
func (b *Bridge) Cursor() int64 {
	b.cursorMu.Lock()
	defer b.cursorMu.Unlock()
	return b.cursor
}

// FindByShareCode looks a share code up in the remote store.
func (b *Bridge) FindByShareCode(ctx context.Context, kind domain.Kind, code string) (store.Change, error) {
	return b.remote.FindByShareCode(ctx, kind, code)
}
