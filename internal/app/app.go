// Package app wires the tripbook components together from a config.Config.
// Both binaries build on it: cmd/api serves it over HTTP and cmd/tripctl
// runs maintenance commands against it. No business logic belongs here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sethvargo/go-retry"

	"github.com/pkordes/tripbook/backend/internal/config"
	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/images"
	"github.com/pkordes/tripbook/backend/internal/remote"
	"github.com/pkordes/tripbook/backend/internal/replication"
	"github.com/pkordes/tripbook/backend/internal/service"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// App holds every long-lived component.
type App struct {
	Config   config.Config
	Log      *slog.Logger
	Registry *prometheus.Registry

	Store  *store.Store
	Images images.Store

	TravelPlans   *store.Collection[domain.TravelPlan]
	Plans         *store.Collection[domain.Plan]
	VisitedPlaces *store.Collection[domain.VisitedPlace]

	TravelPlanService   *service.Records[domain.TravelPlan]
	PlanService         *service.Records[domain.Plan]
	VisitedPlaceService *service.Records[domain.VisitedPlace]
	Sharing             *service.SharingService
	Janitor             *service.ImageJanitor

	// Bridge is nil when replication is off.
	Bridge *replication.Bridge
	// Pool is nil when replication is off.
	Pool *pgxpool.Pool

	stopReplicating func()
}

// NewLogger returns a JSON slog.Logger at level ("debug", "info", ...).
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l}))
}

// New opens the local store and the image side channel, connects the
// remote store when one is configured and builds the orchestrators.
// auth decides who the caller is: HTTP requests carry it in the context,
// the CLI names it up front.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, auth service.Auth) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var err error
	if a.Store, err = store.Open(ctx, cfg.LocalDBPath); err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	if a.Images, err = images.Open(ctx, cfg.Images); err != nil {
		_ = a.Store.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	log.Info("local store opened", "path", cfg.LocalDBPath, "image_driver", cfg.Images.Driver)

	a.TravelPlans = store.NewCollection[domain.TravelPlan](a.Store)
	a.Plans = store.NewCollection[domain.Plan](a.Store)
	a.VisitedPlaces = store.NewCollection[domain.VisitedPlace](a.Store)

	var lookup service.ShareLookup
	if cfg.ReplicationEnabled() {
		if err := a.connectRemote(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		lookup = a.Bridge
	}

	notifier := service.WithNotifier(service.LogNotifier{Log: log.With("component", "notifier")})
	a.TravelPlanService = service.NewRecords[domain.TravelPlan](a.TravelPlans, a.Images, auth, log, notifier)
	a.PlanService = service.NewRecords[domain.Plan](a.Plans, a.Images, auth, log, notifier)
	a.VisitedPlaceService = service.NewRecords[domain.VisitedPlace](a.VisitedPlaces, a.Images, auth, log)
	a.Sharing = service.NewSharingService(a.TravelPlans, lookup, auth)
	a.Janitor = service.NewImageJanitor(a.Images, log,
		service.RefsOf[domain.TravelPlan](a.TravelPlans),
		service.RefsOf[domain.VisitedPlace](a.VisitedPlaces),
	)
	return a, nil
}

// connectRemote opens the Postgres pool, waits for it to answer and
// attaches a replication bridge to the local store.
func (a *App) connectRemote(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, a.Config.RemoteDatabaseURL)
	if err != nil {
		return fmt.Errorf("create remote pool: %w", err)
	}
	a.Pool = pool

	// The database often comes up after us in compose setups.
	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			a.Log.Warn("remote store not reachable yet", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("connect remote store: %w", err)
	}
	a.Log.Info("remote store connected", "account", a.Config.SyncAccountID)

	a.Bridge = replication.New(
		remote.NewPGRemote(pool),
		a.Store,
		replication.Config{Account: a.Config.SyncAccountID, PullInterval: a.Config.SyncPullInterval},
		a.Log.With("component", "replication"),
		replication.NewMetrics(a.Registry),
	)
	a.stopReplicating = a.Store.Observe(a.Bridge.Observe)
	return nil
}

// Replicate seeds the push queue with every local record and runs the
// bridge until ctx is cancelled. It returns at once when replication is off.
func (a *App) Replicate(ctx context.Context) error {
	if a.Bridge == nil {
		return nil
	}
	if err := a.Bridge.Seed(ctx); err != nil {
		return err
	}
	a.Bridge.Run(ctx)
	return nil
}

// Flush waits for queued changes to reach the remote store, up to timeout.
func (a *App) Flush(timeout time.Duration) error {
	if a.Bridge == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Bridge.Flush(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if n := a.Bridge.Pending(); n > 0 {
		a.Log.Warn("changes not pushed before shutdown; they are pushed on next start", "pending", n)
	}
	return nil
}

// Close waits for background orchestrator work and releases every resource.
func (a *App) Close() {
	if a.TravelPlanService != nil {
		a.TravelPlanService.Wait()
		a.PlanService.Wait()
		a.VisitedPlaceService.Wait()
	}
	if a.stopReplicating != nil {
		a.stopReplicating()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("local store close", "error", err)
		}
	}
}
