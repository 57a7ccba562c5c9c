package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/job"
	"github.com/losol/eventuras-sub008/internal/externalsync"
	"github.com/losol/eventuras-sub008/internal/http/middlewares"
	"github.com/losol/eventuras-sub008/internal/jobs"
)

type SyncService interface {
	SyncEvent(ctx context.Context, eventID, providerName string) ([]*externalsync.Result, error)
	ProviderNames() []string
	HasProvider(name string) bool
}

type EventReader interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

type JobCreator interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

type SyncHandler struct {
	sync    SyncService
	events  EventReader
	jobs    JobCreator
	timeout time.Duration
	log     *slog.Logger
}

// NewSyncHandler wires the sync endpoints. jobs may be nil, which disables
// async runs. timeout bounds a synchronous run.
func NewSyncHandler(sync SyncService, events EventReader, jobs JobCreator, timeout time.Duration, log *slog.Logger) *SyncHandler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &SyncHandler{sync: sync, events: events, jobs: jobs, timeout: timeout, log: log}
}

// GET /admin/sync/providers
func (h *SyncHandler) Providers(ctx *gin.Context) {
	names := h.sync.ProviderNames()
	ctx.JSON(http.StatusOK, gin.H{
		"count": len(names),
		"items": names,
	})
}

// POST /admin/events/:id/sync?provider=&async=
func (h *SyncHandler) SyncEvent(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !isUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	provider := ctx.Query("provider")
	if provider != "" && !h.sync.HasProvider(provider) {
		RespondError(ctx, http.StatusNotFound, "unknown_provider", "Sync provider not found", gin.H{"provider": provider})
		return
	}

	async, ok := parseBoolDefault(ctx.Query("async"), false)
	if !ok {
		RespondBadRequest(ctx, "async must be a boolean", nil)
		return
	}

	if async {
		h.enqueue(ctx, eventID, provider)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	results, err := h.sync.SyncEvent(cctx, eventID, provider)
	if err != nil {
		h.respondSyncError(ctx, eventID, results, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"eventId": eventID,
		"results": results,
	})
}

func (h *SyncHandler) respondSyncError(ctx *gin.Context, eventID string, partial []*externalsync.Result, err error) {
	switch {
	case errors.Is(err, event.ErrNotFound):
		RespondNotFound(ctx, "Event not found")
	case errors.Is(err, externalsync.ErrSyncInProgress):
		RespondConflict(ctx, "sync_in_progress", "A synchronization is already running for this event")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		RespondError(ctx, http.StatusServiceUnavailable, "sync_interrupted",
			"Synchronization stopped before completing", gin.H{"results": partial})
	default:
		h.log.ErrorContext(ctx.Request.Context(), "sync.failed",
			"request_id", requestIDFrom(ctx),
			"event_id", eventID,
			"err", err,
		)
		RespondInternal(ctx, "Could not synchronize event")
	}
}

func (h *SyncHandler) enqueue(ctx *gin.Context, eventID, provider string) {
	if h.jobs == nil {
		RespondError(ctx, http.StatusNotImplemented, "async_unavailable", "Asynchronous sync is not enabled", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.events.GetByID(cctx, eventID); err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not load event")
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)
	req, err := jobs.NewRequest(jobs.JobSyncEvent, jobs.SyncEventPayload{
		EventID:     eventID,
		Provider:    provider,
		RequestedBy: userID,
		RequestID:   requestIDFrom(ctx),
	}, jobs.SyncEventKey(eventID, provider))
	if err != nil {
		RespondInternal(ctx, "Could not enqueue job")
		return
	}

	j, err := h.jobs.Create(cctx, req)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "job.enqueue_failed",
			"request_id", requestIDFrom(ctx),
			"event_id", eventID,
			"err", err,
		)
		RespondInternal(ctx, "Could not enqueue job")
		return
	}

	ctx.Set(middlewares.CtxJobID, j.ID)
	h.log.InfoContext(ctx.Request.Context(), "job.enqueue",
		"request_id", requestIDFrom(ctx),
		"job_id", j.ID,
		"job_type", j.Type,
		"event_id", eventID,
		"provider", provider,
	)

	ctx.JSON(http.StatusAccepted, gin.H{
		"jobId":  j.ID,
		"status": j.Status,
		"type":   j.Type,
	})
}
