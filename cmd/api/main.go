package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/losol/eventuras-sub008/internal/app"
	"github.com/losol/eventuras-sub008/internal/auth"
	"github.com/losol/eventuras-sub008/internal/config"
	httpx "github.com/losol/eventuras-sub008/internal/http"
	"github.com/losol/eventuras-sub008/internal/http/middlewares"
	"github.com/losol/eventuras-sub008/internal/observability"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close failed", "err", err)
		}
	}()

	router := httpx.NewRouter(httpx.Deps{
		Env:         cfg.Env,
		ServiceName: cfg.ServiceName,
		Logger:      log,
		Prom:        a.Prom,
		Metrics:     promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		Ping:        a.Ping,

		Auth:       auth.NewManager(cfg.JWTSecret, 0),
		AdminRoles: cfg.AdminRoles,

		Sync:           a.Orchestrator,
		SyncTimeout:    cfg.Sync.RequestTimeout,
		Events:         a.CachedEvents,
		Jobs:           a.Jobs,
		AdminJobs:      a.Jobs,
		ExternalEvents: a.ExternalEvents,

		Notifications:      a.Service,
		NotificationReader: a.Notifications,
		NotifyRateLimit: middlewares.RateLimit{
			Limiter: a.Limiter,
			Limit:   cfg.Notification.RateLimit,
			Window:  cfg.Notification.RateWindow,
			Prefix:  "notifications",
			Logger:  log,
		},

		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// synchronous sync requests can run for minutes
		WriteTimeout: cfg.Sync.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server shutting down")
	case err := <-errCh:
		log.Error("server failed", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}
	log.Info("shutdown complete")
}
