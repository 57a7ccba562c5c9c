package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/job"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/externalsync"
	"github.com/losol/eventuras-sub008/internal/jobs"
)

type SyncRunner interface {
	SyncEvent(ctx context.Context, eventID, providerName string) ([]*externalsync.Result, error)
}

type NotificationSender interface {
	Send(ctx context.Context, notificationID string) error
}

// SyncEventHandler runs a sync_event job. Per-registration failures are part
// of the results and do not fail the job; a run already in progress does.
func SyncEventHandler(runner SyncRunner, log *slog.Logger) Handler {
	return func(ctx context.Context, j job.Job) error {
		decoded, err := jobs.DecodePayload(j)
		if err != nil {
			return Permanent(err)
		}
		p := decoded.(jobs.SyncEventPayload)

		results, err := runner.SyncEvent(ctx, p.EventID, p.Provider)
		if err != nil {
			if errors.Is(err, event.ErrNotFound) {
				return Permanent(err)
			}
			return fmt.Errorf("sync event %s: %w", p.EventID, err)
		}

		for _, r := range results {
			log.InfoContext(ctx, "worker.sync_result",
				"job_id", j.ID,
				"event_id", p.EventID,
				"provider", r.ProviderName,
				"created", r.CreatedUserIDs.Len(),
				"existing", r.ExistingUserIDs.Len(),
				"new_registered", r.NewRegisteredUserIDs.Len(),
				"total_registered", r.TotalRegisteredUserIDs.Len(),
				"generic_errors", len(r.GenericErrors),
				"user_errors", len(r.UserExportErrors),
			)
		}
		return nil
	}
}

// SendNotificationHandler runs a send_notification job. Failed recipients
// make the job retry; recipients already sent are skipped on the next attempt.
func SendNotificationHandler(sender NotificationSender) Handler {
	return func(ctx context.Context, j job.Job) error {
		decoded, err := jobs.DecodePayload(j)
		if err != nil {
			return Permanent(err)
		}
		p := decoded.(jobs.SendNotificationPayload)

		err = sender.Send(ctx, p.NotificationID)
		if errors.Is(err, notification.ErrNotFound) {
			return Permanent(err)
		}
		return err
	}
}

// RegisterHandlers binds every job type this service enqueues.
func RegisterHandlers(w *Worker, runner SyncRunner, sender NotificationSender, log *slog.Logger) {
	w.Handle(string(jobs.JobSyncEvent), SyncEventHandler(runner, log))
	w.Handle(string(jobs.JobSendNotification), SendNotificationHandler(sender))
}
