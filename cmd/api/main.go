// Package main is the entry point for the tripbook API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pkordes/tripbook/backend/internal/app"
	"github.com/pkordes/tripbook/backend/internal/calendar"
	"github.com/pkordes/tripbook/backend/internal/config"
	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/handler"
	"github.com/pkordes/tripbook/backend/internal/middleware"
	"github.com/pkordes/tripbook/backend/internal/query"
	"github.com/pkordes/tripbook/backend/internal/service"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Logger not configured yet: the default handler writes to stderr.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// --- Components -------------------------------------------------------
	ctx, stopReplication := context.WithCancel(context.Background())
	defer stopReplication()

	auth := service.ContextAuth{}
	a, err := app.New(ctx, cfg, logger, auth)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	replicationDone := make(chan struct{})
	go func() {
		defer close(replicationDone)
		if err := a.Replicate(ctx); err != nil {
			slog.Error("replication stopped", "error", err)
		}
	}()

	// Deliveries to live queries run on one goroutine, in write order.
	loop := query.NewLoop()
	defer loop.Close()
	ctl := query.New(a.Store, loop, logger.With("component", "query"))
	defer ctl.Close()

	watch := func(ctx context.Context, onChange func([]domain.TravelPlan)) (func(), error) {
		caller, err := auth.CallerID(ctx)
		if err != nil {
			return nil, err
		}
		sub, err := query.Watch(ctx, ctl, a.TravelPlans, query.Query[domain.TravelPlan]{CallerID: caller}, onChange)
		if err != nil {
			return nil, err
		}
		return sub.Cancel, nil
	}
	watchCalendar := func(ctx context.Context, day time.Time, loc *time.Location, onChange func([]calendar.Item)) (func(), error) {
		caller, err := auth.CallerID(ctx)
		if err != nil {
			return nil, err
		}
		live, err := calendar.Watch(ctx, ctl, a.Plans, a.TravelPlans, caller, day, loc, onChange)
		if err != nil {
			return nil, err
		}
		return live.Cancel, nil
	}

	// --- Router -----------------------------------------------------------
	// Middleware order: RequestID → RealIP → Logger → Recoverer → CORS →
	// body limit → caller.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))
	r.Use(middleware.Caller)

	srv := handler.NewServer(handler.Deps{
		TravelPlans:   a.TravelPlanService,
		Plans:         a.PlanService,
		VisitedPlaces: a.VisitedPlaceService,
		Sharing:       a.Sharing,
		Images:        a.Images,
		Watch:         watch,
		WatchCalendar: watchCalendar,
		Log:           logger,
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	r.Mount("/", srv.Routes())

	// --- HTTP Server ------------------------------------------------------
	// Image uploads ride in request bodies, so reads get more time than
	// the defaults. Event streams clear their own write deadline.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr, "replication", cfg.ReplicationEnabled())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Give queued changes a last chance to reach the remote store.
	if err := a.Flush(10 * time.Second); err != nil {
		slog.Error("replication flush", "error", err)
	}
	stopReplication()
	<-replicationDone
	slog.Info("server stopped")
}
