// Package service contains the orchestrators for the tripbook sync core.
// They stamp ownership and timestamps, validate, keep images in the side
// channel and schedule reminders. They depend on the Repo interface, never
// on the store directly, and never wait on replication.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/images"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// Repo is the persistence contract for one record kind.
// *store.Collection satisfies it.
type Repo[T any] interface {
	// Get returns domain.ErrNotFound if no record has that id.
	Get(ctx context.Context, id uuid.UUID) (T, error)
	Query(ctx context.Context, f store.Filter, pred func(T) bool) ([]T, error)
	// Put assigns an id to records that have none and returns the stored record.
	Put(ctx context.Context, rec T) (T, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Option configures a Records orchestrator.
type Option func(*options)

type options struct {
	notifier Notifier
	now      func() time.Time
}

// WithNotifier makes the orchestrator schedule reminders for records that
// carry one.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock overrides the clock used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Records orchestrates create, replace and delete for one record kind.
type Records[T domain.Managed[T]] struct {
	repo     Repo[T]
	images   images.Store
	auth     Auth
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time

	bg sync.WaitGroup
}

// NewRecords constructs a Records orchestrator.
func NewRecords[T domain.Managed[T]](repo Repo[T], img images.Store, auth Auth, log *slog.Logger, opts ...Option) *Records[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Records[T]{
		repo:     repo,
		images:   img,
		auth:     auth,
		notifier: o.notifier,
		log:      log,
		now:      o.now,
	}
}

// stamp is the orchestrator clock, truncated to what Postgres keeps.
func (s *Records[T]) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Add stamps, validates and stores a new record. When image is non-empty it
// is saved first; if that fails the record is stored without an image.
// Any id on rec is replaced with a fresh one.
func (s *Records[T]) Add(ctx context.Context, rec T, image []byte) (T, error) {
	var zero T
	caller, err := callerID(ctx, s.auth)
	if err != nil {
		return zero, fmt.Errorf("service.Records.Add: %w", err)
	}

	rec = rec.WithID(uuid.Nil).Stamp(caller, s.stamp()).Normalize()
	if err := rec.Validate(); err != nil {
		return zero, fmt.Errorf("service.Records.Add: %w", err)
	}

	name := s.saveImage(ctx, rec, image)
	rec = rec.WithImageRef(name)

	saved, err := s.repo.Put(ctx, rec)
	if err != nil {
		s.releaseImage(ctx, name)
		return zero, fmt.Errorf("service.Records.Add: %w", err)
	}

	s.schedule(ctx, saved)
	return saved, nil
}

// Update fully replaces the record with rec's id. Creation time, ownership
// and sharing stay as stored. A new image replaces the old one, which is
// released only after the record points at the new one; without a new image
// the stored image is kept.
func (s *Records[T]) Update(ctx context.Context, rec T, image []byte) (T, error) {
	var zero T
	caller, err := callerID(ctx, s.auth)
	if err != nil {
		return zero, fmt.Errorf("service.Records.Update: %w", err)
	}

	prev, err := s.visible(ctx, caller, rec.Meta().ID)
	if err != nil {
		return zero, fmt.Errorf("service.Records.Update: %w", err)
	}

	rec = rec.Adopt(prev, s.stamp()).Normalize()
	if err := rec.Validate(); err != nil {
		return zero, fmt.Errorf("service.Records.Update: %w", err)
	}

	oldName := prev.ImageRef()
	newName := s.saveImage(ctx, rec, image)
	if newName != "" {
		rec = rec.WithImageRef(newName)
	} else {
		rec = rec.WithImageRef(oldName)
	}

	saved, err := s.repo.Put(ctx, rec)
	if err != nil {
		s.releaseImage(ctx, newName)
		return zero, fmt.Errorf("service.Records.Update: %w", err)
	}

	if newName != "" && oldName != "" && oldName != newName {
		s.releaseImage(ctx, oldName)
	}
	s.schedule(ctx, saved)
	return saved, nil
}

// Delete removes a record, its image and its reminder.
// Returns domain.ErrNotFound if the caller cannot see a record with that id.
// The record goes first and the image after it, so a failed delete never
// leaves a live record pointing at a missing image; an image left behind
// by a failed release is collected by the image janitor.
func (s *Records[T]) Delete(ctx context.Context, id uuid.UUID) error {
	caller, err := callerID(ctx, s.auth)
	if err != nil {
		return fmt.Errorf("service.Records.Delete: %w", err)
	}

	prev, err := s.visible(ctx, caller, id)
	if err != nil {
		return fmt.Errorf("service.Records.Delete: %w", err)
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("service.Records.Delete: %w", err)
	}
	if !deleted {
		return fmt.Errorf("service.Records.Delete: %w", domain.ErrNotFound)
	}

	s.releaseImage(ctx, prev.ImageRef())
	s.cancelReminder(ctx, prev)
	return nil
}

// Get returns a single record visible to the caller.
func (s *Records[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	caller, err := callerID(ctx, s.auth)
	if err != nil {
		return zero, fmt.Errorf("service.Records.Get: %w", err)
	}
	rec, err := s.visible(ctx, caller, id)
	if err != nil {
		return zero, fmt.Errorf("service.Records.Get: %w", err)
	}
	return rec, nil
}

// List returns every record visible to the caller, newest start date first.
// where may be nil. The result is never nil.
func (s *Records[T]) List(ctx context.Context, where func(T) bool) ([]T, error) {
	caller, err := callerID(ctx, s.auth)
	if err != nil {
		return nil, fmt.Errorf("service.Records.List: %w", err)
	}
	recs, err := s.repo.Query(ctx, store.Filter{CallerID: caller, Sort: store.SortStartDesc}, where)
	if err != nil {
		return nil, fmt.Errorf("service.Records.List: %w", err)
	}
	if recs == nil {
		recs = []T{}
	}
	return recs, nil
}

// Wait blocks until background work (image releases, reminders) started
// so far has finished. Used by tests and at shutdown.
func (s *Records[T]) Wait() {
	s.bg.Wait()
}

// visible loads id and hides records the caller may not see.
func (s *Records[T]) visible(ctx context.Context, caller string, id uuid.UUID) (T, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if !rec.Meta().VisibleTo(caller) {
		var zero T
		return zero, domain.ErrNotFound
	}
	return rec, nil
}

// saveImage stores image under a fresh name and returns it, or "" when
// there is no image or it could not be saved.
func (s *Records[T]) saveImage(ctx context.Context, rec T, image []byte) string {
	if len(image) == 0 {
		return ""
	}
	name := images.NewName()
	if rec.WithImageRef(name).ImageRef() != name {
		// This kind has nowhere to keep an image.
		return ""
	}
	if err := s.images.Save(ctx, image, name); err != nil {
		s.log.Warn("image not saved, storing record without it",
			"kind", rec.Kind(),
			"error", fmt.Errorf("%w: %w", domain.ErrImagePersistence, err),
		)
		return ""
	}
	return name
}

// releaseImage removes name in the background.
func (s *Records[T]) releaseImage(ctx context.Context, name string) {
	if name == "" {
		return
	}
	s.background(ctx, func(ctx context.Context) {
		if err := s.images.Remove(ctx, name); err != nil {
			s.log.Warn("image not released", "image", name, "error", err)
		}
	})
}

func (s *Records[T]) schedule(ctx context.Context, rec T) {
	r, ok := any(rec).(domain.Reminding)
	if !ok || s.notifier == nil {
		return
	}
	reminder := r.Reminder()
	s.background(ctx, func(ctx context.Context) {
		if err := s.notifier.Schedule(ctx, reminder); err != nil {
			s.log.Warn("reminder not scheduled", "plan_id", reminder.PlanID, "error", err)
		}
	})
}

func (s *Records[T]) cancelReminder(ctx context.Context, rec T) {
	if _, ok := any(rec).(domain.Reminding); !ok || s.notifier == nil {
		return
	}
	id := rec.Meta().ID
	s.background(ctx, func(ctx context.Context) {
		if err := s.notifier.Cancel(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("reminder not cancelled", "plan_id", id, "error", err)
		}
	})
}

// background runs fn on its own goroutine with a context that outlives the
// request that triggered it.
func (s *Records[T]) background(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(ctx)
	}()
}
