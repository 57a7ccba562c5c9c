package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
)

type ExternalEventStore interface {
	Create(ctx context.Context, ev external.Event) error
	ListByEvent(ctx context.Context, eventID string) ([]external.Event, error)
	Delete(ctx context.Context, id string) error
}

type ProviderCatalog interface {
	HasProvider(name string) bool
}

type CreateExternalEventRequest struct {
	ProviderName    string `json:"providerName" binding:"required,max=100"`
	ExternalEventID string `json:"externalEventId" binding:"required,max=200"`
}

type ExternalEventsHandler struct {
	store     ExternalEventStore
	events    EventReader
	providers ProviderCatalog
}

func NewExternalEventsHandler(store ExternalEventStore, events EventReader, providers ProviderCatalog) *ExternalEventsHandler {
	return &ExternalEventsHandler{store: store, events: events, providers: providers}
}

// POST /admin/events/:id/external-events
func (h *ExternalEventsHandler) Create(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !isUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	var body CreateExternalEventRequest
	if !BindJSON(ctx, &body) {
		return
	}

	if !h.providers.HasProvider(body.ProviderName) {
		RespondBadRequest(ctx, "Unknown sync provider", gin.H{"providerName": body.ProviderName})
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

	ev := external.NewEvent(eventID, body.ProviderName, body.ExternalEventID)
	if err := h.store.Create(cctx, ev); err != nil {
		switch {
		case errors.Is(err, external.ErrDuplicateEvent):
			RespondConflict(ctx, "DuplicateExternalEvent", "External event is already mapped for this provider")
		case errors.Is(err, event.ErrNotFound):
			RespondNotFound(ctx, "Event not found")
		default:
			RespondInternal(ctx, "Could not create external event")
		}
		return
	}

	ctx.JSON(http.StatusCreated, ev)
}

// GET /admin/events/:id/external-events
func (h *ExternalEventsHandler) List(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !isUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, err := h.store.ListByEvent(cctx, eventID)
	if err != nil {
		RespondInternal(ctx, "Could not list external events")
		return
	}
	if items == nil {
		items = []external.Event{}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"eventId": eventID,
		"count":   len(items),
		"items":   items,
	})
}

// DELETE /admin/external-events/:id
func (h *ExternalEventsHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Delete(cctx, id); err != nil {
		if errors.Is(err, external.ErrEventNotFound) {
			RespondNotFound(ctx, "External event not found")
			return
		}
		RespondInternal(ctx, "Could not delete external event")
		return
	}

	ctx.Status(http.StatusNoContent)
}
