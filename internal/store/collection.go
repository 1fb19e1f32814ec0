package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// Collection is a typed view of one record kind. It encodes records as JSON
// payloads and assigns ids to new records, so callers never handle envelopes.
type Collection[T domain.Record[T]] struct {
	store *Store
	kind  domain.Kind
}

// NewCollection returns the collection of T records kept in s.
func NewCollection[T domain.Record[T]](s *Store) *Collection[T] {
	var zero T
	return &Collection[T]{store: s, kind: zero.Kind()}
}

// Kind returns the record kind this collection holds.
func (c *Collection[T]) Kind() domain.Kind {
	return c.kind
}

// Store returns the underlying entity store.
func (c *Collection[T]) Store() *Store {
	return c.store
}

// Put stores rec, assigning a fresh id when rec has none, and returns the
// record as stored. An existing id is a full replace.
func (c *Collection[T]) Put(ctx context.Context, rec T) (T, error) {
	if rec.Meta().ID == uuid.Nil {
		rec = rec.WithID(uuid.New())
	}
	env, err := c.Encode(rec)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("store.Collection.Put: %w", err)
	}
	if _, err := c.store.Put(ctx, env); err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// Get retrieves a record by id.
// Returns domain.ErrNotFound if it does not exist.
func (c *Collection[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	env, err := c.store.Get(ctx, c.kind, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Decode(env)
}

// Query returns the records matching f and, when pred is non-nil, pred.
// Order follows f.Sort. The result is never nil.
func (c *Collection[T]) Query(ctx context.Context, f Filter, pred func(T) bool) ([]T, error) {
	envs, err := c.store.Query(ctx, c.kind, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(envs))
	for _, env := range envs {
		rec, err := c.Decode(env)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns every record of this kind regardless of visibility, in
// insertion order.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	return c.Query(ctx, Filter{Sort: SortInsertion}, nil)
}

// Delete removes a record by id and reports whether it existed.
func (c *Collection[T]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return c.store.Delete(ctx, c.kind, id)
}

// Encode wraps rec into an envelope.
func (c *Collection[T]) Encode(rec T) (Envelope, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", c.kind, err)
	}
	return Envelope{Kind: c.kind, Meta: rec.Meta(), Payload: payload}, nil
}

// Decode unwraps an envelope of this collection's kind.
func (c *Collection[T]) Decode(env Envelope) (T, error) {
	var rec T
	if env.Kind != c.kind {
		return rec, fmt.Errorf("store.Collection.Decode: %w: got %s, want %s", domain.ErrValidation, env.Kind, c.kind)
	}
	if err := json.Unmarshal(env.Payload, &rec); err != nil {
		return rec, fmt.Errorf("store.Collection.Decode: %s %s: %w", env.Kind, env.Meta.ID, err)
	}
	return rec, nil
}
