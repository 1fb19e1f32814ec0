package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// Auth tells the orchestrators who is calling.
type Auth interface {
	// CallerID returns the signed-in account id, or an error wrapping
	// domain.ErrNotAuthenticated.
	CallerID(ctx context.Context) (string, error)
}

// Notifier schedules reminders for plans. Delivery is someone else's problem.
type Notifier interface {
	Schedule(ctx context.Context, r domain.Reminder) error
	Cancel(ctx context.Context, planID uuid.UUID) error
}

type callerKey struct{}

// WithCaller returns a context carrying callerID.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerKey{}, callerID)
}

// ContextAuth reads the caller id placed in the context by WithCaller.
type ContextAuth struct{}

func (ContextAuth) CallerID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(callerKey{}).(string)
	if strings.TrimSpace(id) == "" {
		return "", domain.ErrNotAuthenticated
	}
	return id, nil
}

// StaticAuth always answers with the same caller. The CLI uses it.
type StaticAuth string

func (a StaticAuth) CallerID(context.Context) (string, error) {
	if a == "" {
		return "", domain.ErrNotAuthenticated
	}
	return string(a), nil
}

// LogNotifier records reminders in the log instead of delivering them.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Schedule(_ context.Context, r domain.Reminder) error {
	n.Log.Info("reminder scheduled",
		"plan_id", r.PlanID,
		"kind", r.Kind,
		"title", r.Title,
		"at", r.At,
	)
	return nil
}

func (n LogNotifier) Cancel(_ context.Context, planID uuid.UUID) error {
	n.Log.Info("reminder cancelled", "plan_id", planID)
	return nil
}

func callerID(ctx context.Context, auth Auth) (string, error) {
	id, err := auth.CallerID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty caller id", domain.ErrNotAuthenticated)
	}
	return id, nil
}
