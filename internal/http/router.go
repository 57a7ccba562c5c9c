package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/losol/eventuras-sub008/internal/http/handlers"
	"github.com/losol/eventuras-sub008/internal/http/middlewares"
	"github.com/losol/eventuras-sub008/internal/observability"
)

const maxBodyBytes = 1 << 20

// Deps carries everything the router mounts. Metrics and Prom are optional.
type Deps struct {
	Env         string
	ServiceName string
	Logger      *slog.Logger

	Prom    *observability.Prom
	Metrics http.Handler
	Ping    func(ctx context.Context) error

	Auth       middlewares.TokenVerifier
	AdminRoles []string

	Sync           handlers.SyncService
	SyncTimeout    time.Duration
	Events         handlers.EventReader
	Jobs           handlers.JobCreator
	AdminJobs      handlers.AdminJobsRepo
	ExternalEvents handlers.ExternalEventStore

	Notifications      handlers.NotificationCreator
	NotificationReader handlers.NotificationReader
	NotifyRateLimit    middlewares.RateLimit

	CORSOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	if d.Env != "dev" && d.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	roles := d.AdminRoles
	if len(roles) == 0 {
		roles = []string{"admin"}
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders(d.Env == "prod"))
	r.Use(middlewares.CORS(d.CORSOrigins))

	health := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	authm := middlewares.NewAuthMiddleware(d.Auth)

	api := r.Group("/")
	api.Use(middlewares.MaxBodyBytes(maxBodyBytes), middlewares.RequireJSON())
	api.Use(authm.RequireAuth(), authm.RequireRole(roles...))

	syncH := handlers.NewSyncHandler(d.Sync, d.Events, d.Jobs, d.SyncTimeout, log)
	extH := handlers.NewExternalEventsHandler(d.ExternalEvents, d.Events, d.Sync)
	jobsH := handlers.NewAdminJobsHandler(d.AdminJobs)
	notifH := handlers.NewNotificationsHandler(d.Notifications, d.NotificationReader, log)

	admin := api.Group("/admin")
	{
		admin.GET("/sync/providers", syncH.Providers)
		admin.POST("/events/:id/sync", syncH.SyncEvent)

		admin.POST("/events/:id/external-events", extH.Create)
		admin.GET("/events/:id/external-events", extH.List)
		admin.DELETE("/external-events/:id", extH.Delete)

		admin.GET("/jobs", jobsH.List)
		admin.GET("/jobs/:id", jobsH.GetByID)
		admin.POST("/jobs/:id/retry", jobsH.Retry)
		admin.POST("/jobs/retry-failed", jobsH.RetryFailed)
	}

	notif := api.Group("/notifications")
	{
		limited := d.NotifyRateLimit.Middleware(middlewares.KeyByUserOrIP)
		notif.POST("/email", limited, notifH.CreateEmail)
		notif.POST("/sms", limited, notifH.CreateSMS)

		notif.GET("", notifH.List)
		notif.GET("/:id", notifH.GetByID)
		notif.GET("/:id/recipients", notifH.Recipients)
	}

	return r
}
