package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/losol/eventuras-sub008/internal/domain/notification"
)

var (
	// ErrPartialDelivery is returned when at least one recipient failed. The
	// failed recipients are retried by the next Send.
	ErrPartialDelivery = errors.New("notification partially delivered")
	// ErrRecipientsBusy means another worker holds some recipients.
	ErrRecipientsBusy = errors.New("notification recipients claimed by another sender")
)

type DeliveryStore interface {
	GetByID(ctx context.Context, id string) (notification.Notification, error)
	ListRecipients(ctx context.Context, notificationID string) ([]notification.Recipient, error)
	ClaimRecipient(ctx context.Context, recipientID string, staleAfter time.Duration) (notification.Recipient, error)
	MarkRecipientSent(ctx context.Context, recipientID string) error
	MarkRecipientFailed(ctx context.Context, recipientID, errMsg string) error
	UpdateStatus(ctx context.Context, id string, status notification.Status) error
	RefreshStatistics(ctx context.Context, id string) (notification.Statistics, error)
}

type SendMetrics interface {
	ObserveNotificationSend(kind, result string)
}

type DeliveryConfig struct {
	// StaleAfter lets a recipient stuck in sending be claimed again.
	StaleAfter time.Duration
	Metrics    SendMetrics
	Logger     *slog.Logger
}

// DeliveryService sends a stored notification to each of its recipients.
// Safe to call repeatedly: recipients already sent are never sent again.
type DeliveryService struct {
	store      DeliveryStore
	notifier   Notifier
	staleAfter time.Duration
	metrics    SendMetrics
	log        *slog.Logger
	tracer     trace.Tracer
}

func NewDeliveryService(store DeliveryStore, notifier Notifier, cfg DeliveryConfig) *DeliveryService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DeliveryService{
		store:      store,
		notifier:   notifier,
		staleAfter: cfg.StaleAfter,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		tracer:     otel.Tracer("github.com/losol/eventuras-sub008/internal/notifications"),
	}
}

func (d *DeliveryService) Deliver(ctx context.Context, n notification.Notification) error {
	return d.Send(ctx, n.ID)
}

func (d *DeliveryService) Send(ctx context.Context, notificationID string) (err error) {
	ctx, span := d.tracer.Start(ctx, "notifications.Send", trace.WithAttributes(
		attribute.String("notification.id", notificationID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	n, err := d.store.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.Status == notification.StatusSent {
		return nil
	}

	if err := d.store.UpdateStatus(ctx, n.ID, notification.StatusSending); err != nil {
		return fmt.Errorf("mark sending: %w", err)
	}

	recipients, err := d.store.ListRecipients(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}

	var persistErr *multierror.Error
	failed, busy := 0, 0

	for _, rc := range recipients {
		if err := ctx.Err(); err != nil {
			persistErr = multierror.Append(persistErr, err)
			break
		}
		if rc.Status == notification.RecipientSent {
			continue
		}

		claimed, err := d.store.ClaimRecipient(ctx, rc.ID, d.staleAfter)
		switch {
		case errors.Is(err, notification.ErrAlreadySent):
			continue
		case errors.Is(err, notification.ErrInProgress):
			busy++
			continue
		case err != nil:
			persistErr = multierror.Append(persistErr, fmt.Errorf("claim recipient %s: %w", rc.ID, err))
			continue
		}

		sendErr := d.notifier.Send(ctx, Message{
			Kind:           n.Kind,
			To:             claimed.Address,
			Name:           claimed.Name,
			Subject:        n.Subject,
			Body:           n.Message,
			NotificationID: n.ID,
			RecipientID:    claimed.ID,
		})

		if sendErr != nil {
			failed++
			d.observe(n.Kind, sendResult(sendErr))
			d.log.WarnContext(ctx, "notification.send_failed",
				"notification_id", n.ID,
				"recipient_id", claimed.ID,
				"attempt", claimed.Attempts,
				"err", sendErr,
			)
			if err := d.store.MarkRecipientFailed(ctx, claimed.ID, sendErr.Error()); err != nil {
				persistErr = multierror.Append(persistErr, fmt.Errorf("mark recipient %s failed: %w", claimed.ID, err))
			}
			continue
		}

		d.observe(n.Kind, "sent")
		if err := d.store.MarkRecipientSent(ctx, claimed.ID); err != nil {
			persistErr = multierror.Append(persistErr, fmt.Errorf("mark recipient %s sent: %w", claimed.ID, err))
		}
	}

	// Statistics come from the rows so concurrent senders converge.
	stats, err := d.store.RefreshStatistics(ctx, n.ID)
	if err != nil {
		persistErr = multierror.Append(persistErr, fmt.Errorf("refresh statistics: %w", err))
	} else {
		if err := d.store.UpdateStatus(ctx, n.ID, finalStatus(stats, busy)); err != nil {
			persistErr = multierror.Append(persistErr, fmt.Errorf("update status: %w", err))
		}
		d.log.InfoContext(ctx, "notification.delivery_done",
			"notification_id", n.ID,
			"sent", stats.Sent,
			"errors", stats.Errors,
			"recipients", stats.Recipients,
		)
	}

	if err := persistErr.ErrorOrNil(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d recipients failed", ErrPartialDelivery, failed, len(recipients))
	}
	if busy > 0 {
		return fmt.Errorf("%w: %d", ErrRecipientsBusy, busy)
	}
	return nil
}

func (d *DeliveryService) observe(kind notification.Kind, result string) {
	if d.metrics != nil {
		d.metrics.ObserveNotificationSend(string(kind), result)
	}
}

func sendResult(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failed"
	}
}

// finalStatus is sent once every recipient is sent and failed once every
// recipient has settled with at least one error. Anything else stays sending.
func finalStatus(st notification.Statistics, busy int) notification.Status {
	switch {
	case busy > 0:
		return notification.StatusSending
	case st.Sent == st.Recipients:
		return notification.StatusSent
	case st.Sent+st.Errors == st.Recipients:
		return notification.StatusFailed
	default:
		return notification.StatusSending
	}
}
