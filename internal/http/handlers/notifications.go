package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/domain/product"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
	"github.com/losol/eventuras-sub008/internal/http/middlewares"
	"github.com/losol/eventuras-sub008/internal/notifications"
	"github.com/losol/eventuras-sub008/internal/utils"
)

type NotificationCreator interface {
	CreateAndSend(ctx context.Context, req notifications.Request) (notification.Notification, error)
}

type NotificationReader interface {
	GetByID(ctx context.Context, id string) (notification.Notification, error)
	ListCursor(ctx context.Context, f notification.ListFilter, limit int, after utils.Cursor) ([]notification.Notification, *string, bool, error)
	ListRecipients(ctx context.Context, notificationID string) ([]notification.Recipient, error)
}

type EventParticipantsDTO struct {
	EventID              string                `json:"eventId" binding:"omitempty,uuid"`
	ProductID            string                `json:"productId" binding:"omitempty,uuid"`
	RegistrationStatuses []registration.Status `json:"registrationStatuses" binding:"omitempty,max=10"`
	RegistrationTypes    []registration.Type   `json:"registrationTypes" binding:"omitempty,max=10"`
}

type RecipientSelectorDTO struct {
	Recipients        []string              `json:"recipients" binding:"omitempty,max=5000"`
	EventParticipants *EventParticipantsDTO `json:"eventParticipants"`
	RegistrationID    string                `json:"registrationId" binding:"omitempty,uuid"`
}

type EmailNotificationDTO struct {
	RecipientSelectorDTO
	Subject      string `json:"subject" binding:"required,max=300"`
	BodyMarkdown string `json:"bodyMarkdown" binding:"required,max=100000"`
}

type SMSNotificationDTO struct {
	RecipientSelectorDTO
	Message string `json:"message" binding:"required,max=1600"`
}

func (d RecipientSelectorDTO) selector() notifications.Selector {
	sel := notifications.Selector{
		Recipients:     d.Recipients,
		RegistrationID: d.RegistrationID,
	}
	if p := d.EventParticipants; p != nil {
		sel.EventParticipants = &notifications.ParticipantFilter{
			EventID:   p.EventID,
			ProductID: p.ProductID,
			Statuses:  p.RegistrationStatuses,
			Types:     p.RegistrationTypes,
		}
	}
	return sel
}

type NotificationsHandler struct {
	creator NotificationCreator
	reader  NotificationReader
	log     *slog.Logger
}

func NewNotificationsHandler(creator NotificationCreator, reader NotificationReader, log *slog.Logger) *NotificationsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationsHandler{creator: creator, reader: reader, log: log}
}

// POST /notifications/email
func (h *NotificationsHandler) CreateEmail(ctx *gin.Context) {
	var body EmailNotificationDTO
	if !BindJSON(ctx, &body) {
		return
	}

	h.create(ctx, notifications.Request{
		Kind:     notification.KindEmail,
		Subject:  body.Subject,
		Body:     body.BodyMarkdown,
		Selector: body.selector(),
	})
}

// POST /notifications/sms
func (h *NotificationsHandler) CreateSMS(ctx *gin.Context) {
	var body SMSNotificationDTO
	if !BindJSON(ctx, &body) {
		return
	}

	h.create(ctx, notifications.Request{
		Kind:     notification.KindSMS,
		Body:     body.Message,
		Selector: body.selector(),
	})
}

func (h *NotificationsHandler) create(ctx *gin.Context, req notifications.Request) {
	if userID, ok := middlewares.UserIDFromContext(ctx); ok && isUUID(userID) {
		req.CreatedByUserID = &userID
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 30*time.Second)
	defer cancel()

	n, err := h.creator.CreateAndSend(cctx, req)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrNotFound):
			RespondNotFound(ctx, "Event not found")
		case errors.Is(err, product.ErrNotFound):
			RespondNotFound(ctx, "Product not found")
		case errors.Is(err, registration.ErrNotFound):
			RespondNotFound(ctx, "Registration not found")
		case errors.Is(err, notifications.ErrNoRecipients):
			RespondError(ctx, http.StatusBadRequest, "no_recipients", "No recipients matched the selector", nil)
		case errors.Is(err, notifications.ErrInvalidInput):
			RespondBadRequest(ctx, err.Error(), nil)
		default:
			h.log.ErrorContext(ctx.Request.Context(), "notification.create_failed",
				"request_id", requestIDFrom(ctx),
				"kind", req.Kind,
				"err", err,
			)
			RespondInternal(ctx, "Could not create notification")
		}
		return
	}

	ctx.JSON(http.StatusCreated, n)
}

// GET /notifications?eventId=&status=&limit=&cursor=
func (h *NotificationsHandler) List(ctx *gin.Context) {
	limit := parseIntDefault(ctx.Query("limit"), defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
		return
	}

	var f notification.ListFilter
	if id := ctx.Query("eventId"); id != "" {
		if !isUUID(id) {
			RespondBadRequest(ctx, "eventId is invalid", nil)
			return
		}
		f.EventID = &id
	}
	if s := notification.Status(ctx.Query("status")); s != "" {
		if !s.IsValid() {
			RespondBadRequest(ctx, "status is invalid", nil)
			return
		}
		f.Status = &s
	}

	after, err := cursorFrom(ctx.Query("cursor"))
	if err != nil {
		RespondBadRequest(ctx, "cursor is invalid", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, next, hasMore, err := h.reader.ListCursor(cctx, f, limit, after)
	if err != nil {
		RespondInternal(ctx, "Could not list notifications")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"limit":      limit,
		"count":      len(items),
		"items":      items,
		"hasMore":    hasMore,
		"nextCursor": next,
	})
}

// GET /notifications/:id
func (h *NotificationsHandler) GetByID(ctx *gin.Context) {
	n, ok := h.load(ctx)
	if !ok {
		return
	}
	RespondJSONWithETag(ctx, http.StatusOK, n)
}

// GET /notifications/:id/recipients
func (h *NotificationsHandler) Recipients(ctx *gin.Context) {
	n, ok := h.load(ctx)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	recipients, err := h.reader.ListRecipients(cctx, n.ID)
	if err != nil {
		RespondInternal(ctx, "Could not list recipients")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"notificationId": n.ID,
		"count":          len(recipients),
		"items":          recipients,
	})
}

func (h *NotificationsHandler) load(ctx *gin.Context) (notification.Notification, bool) {
	id := ctx.Param("id")
	if !isUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return notification.Notification{}, false
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	n, err := h.reader.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			RespondNotFound(ctx, "Notification not found")
			return notification.Notification{}, false
		}
		RespondInternal(ctx, "Could not fetch notification")
		return notification.Notification{}, false
	}
	return n, true
}
