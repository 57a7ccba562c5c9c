// Package app builds the component graph shared by the API and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/losol/eventuras-sub008/internal/cache"
	"github.com/losol/eventuras-sub008/internal/config"
	"github.com/losol/eventuras-sub008/internal/db"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/externalsync"
	"github.com/losol/eventuras-sub008/internal/externalsync/providers"
	"github.com/losol/eventuras-sub008/internal/http/middlewares"
	"github.com/losol/eventuras-sub008/internal/notifications"
	"github.com/losol/eventuras-sub008/internal/observability"
	"github.com/losol/eventuras-sub008/internal/queue/redisclient"
	"github.com/losol/eventuras-sub008/internal/repo/postgres"
)

type App struct {
	Cfg      config.Config
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Registry *prometheus.Registry
	Prom     *observability.Prom
	Redis    *redisclient.Client

	Events         *postgres.EventsRepo
	CachedEvents   *cache.Events
	Registrations  *postgres.RegistrationsRepo
	Products       *postgres.ProductsRepo
	ExternalEvents *postgres.ExternalEventsRepo
	Jobs           *postgres.JobsRepo
	Notifications  *postgres.NotificationsRepo
	Tx             *postgres.TxManager

	Orchestrator *externalsync.Orchestrator
	Delivery     *notifications.DeliveryService
	Service      *notifications.Service
	Limiter      middlewares.Limiter

	shutdownTracer func(context.Context) error
}

// New connects to postgres (and redis when configured), applies migrations
// when enabled and wires every service. Close releases what New opened.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.shutdownTracer = shutdown
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Prom = observability.NewProm(a.Registry)

	pool, err := db.NewPool(ctx, cfg.DB, cfg.ServiceName)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}
	a.Pool = pool
	log.Info("database connected", "host", cfg.DB.Host, "database", cfg.DB.Name)

	if cfg.DB.Migrate {
		if err := db.Migrate(ctx, pool, log); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if cfg.Redis.Addr != "" {
		a.Redis = redisclient.New(redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	cfg := a.Cfg

	a.Events = postgres.NewEventsRepo(a.Pool, a.Prom)
	a.CachedEvents = cache.NewEvents(a.Events, 30*time.Second)
	a.Registrations = postgres.NewRegistrationsRepo(a.Pool, a.Prom)
	a.Products = postgres.NewProductsRepo(a.Pool, a.Prom)
	a.ExternalEvents = postgres.NewExternalEventsRepo(a.Pool, a.Prom)
	a.Jobs = postgres.NewJobsRepo(a.Pool, a.Prom)
	a.Notifications = postgres.NewNotificationsRepo(a.Pool, a.Prom)
	a.Tx = postgres.NewTxManager(a.Pool)

	stores := externalsync.Stores{
		Accounts:      postgres.NewExternalAccountsRepo(a.Pool, a.Prom),
		Events:        a.ExternalEvents,
		Registrations: postgres.NewExternalRegistrationsRepo(a.Pool, a.Prom),
	}
	registry, err := providers.NewRegistry(cfg.Sync, stores, a.Log)
	if err != nil {
		return fmt.Errorf("sync providers: %w", err)
	}

	// Without redis the sync lock is per process: the API and the worker do
	// not exclude each other, and the unique external keys are what keep a
	// concurrent run from duplicating records.
	var guard externalsync.RunGuard = cache.NewLocalLock()
	a.Limiter = middlewares.NewMemoryLimiter()
	if a.Redis != nil {
		guard = a.Redis
		a.Limiter = a.Redis
	} else {
		a.Log.Warn("sync.lock_process_local", "reason", "REDIS_ADDR not set")
	}

	a.Orchestrator = externalsync.NewOrchestrator(registry, a.Events, a.Registrations, externalsync.OrchestratorConfig{
		PageSize: cfg.Sync.PageSize,
		Guard:    guard,
		LockTTL:  cfg.Sync.LockTTL,
		Metrics:  a.Prom,
		Logger:   a.Log.With("component", "externalsync"),
	})

	a.Delivery = notifications.NewDeliveryService(a.Notifications, a.transports(), notifications.DeliveryConfig{
		StaleAfter: cfg.Notification.StaleAfter,
		Metrics:    a.Prom,
		Logger:     a.Log.With("component", "notifications"),
	})

	var delivery notifications.Delivery = a.Delivery
	if cfg.Notification.Delivery == config.DeliveryQueue {
		delivery = notifications.NewQueuedDelivery(a.Jobs, a.Notifications, a.Tx, cfg.Notification.MaxAttempts)
	}

	a.Service = notifications.NewService(
		a.Events,
		a.Products,
		a.Registrations,
		a.Notifications,
		a.Tx,
		delivery,
		notifications.ServiceConfig{
			PageSize: cfg.Sync.PageSize,
			Logger:   a.Log.With("component", "notifications"),
		},
	)
	return nil
}

// transports gives each channel its own breaker so an SMS outage does not
// stop email.
func (a *App) transports() notifications.Transports {
	nc := a.Cfg.Notification
	protect := func(kind notification.Kind) notifications.Notifier {
		inner := notifications.NewLogNotifier(a.Log.With("channel", string(kind)), notifications.LogNotifierOptions{})
		return notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
			Timeout:          nc.Timeout,
			FailureThreshold: nc.FailureThreshold,
			Cooldown:         nc.Cooldown,
		})
	}

	return notifications.Transports{
		notification.KindEmail: protect(notification.KindEmail),
		notification.KindSMS:   protect(notification.KindSMS),
	}
}

// Ping checks the database and, when configured, redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.shutdownTracer(ctx))
	}
	return errors.Join(errs...)
}
