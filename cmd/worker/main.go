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

	"golang.org/x/sync/errgroup"

	"github.com/losol/eventuras-sub008/internal/app"
	"github.com/losol/eventuras-sub008/internal/config"
	"github.com/losol/eventuras-sub008/internal/observability"
	"github.com/losol/eventuras-sub008/internal/queue/worker"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env).With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	w := worker.New(worker.Config{
		WorkerID:     worker.DefaultWorkerID(),
		PollInterval: cfg.Worker.PollInterval,
		Concurrency:  cfg.Worker.Concurrency,
		JobTimeout:   cfg.Worker.JobTimeout,
		StaleAfter:   cfg.Worker.StaleAfter,
		Logger:       log,
		Metrics:      a.Prom,
		Backoff:      worker.Backoff{Base: cfg.Worker.BackoffBase, Max: cfg.Worker.BackoffMax}.Delay,
	}, a.Jobs)

	worker.RegisterHandlers(w, a.Orchestrator, a.Delivery, log)

	health := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:           w.HealthHandler(a.Pool),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("worker health server starting", "port", cfg.Worker.HealthPort)
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("worker started", "concurrency", cfg.Worker.Concurrency)
		return w.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("worker shutdown complete")
}
