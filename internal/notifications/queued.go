package notifications

import (
	"context"
	"fmt"

	"github.com/losol/eventuras-sub008/internal/domain/job"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/jobs"
)

type JobEnqueuer interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status notification.Status) error
}

// QueuedDelivery records a send_notification job instead of sending inline.
// A worker picks it up and runs DeliveryService.Send.
type QueuedDelivery struct {
	jobs        JobEnqueuer
	store       StatusUpdater
	tx          TxRunner
	maxAttempts int
}

// NewQueuedDelivery enqueues jobs allowing maxAttempts runs; zero keeps the
// job default.
func NewQueuedDelivery(enqueuer JobEnqueuer, store StatusUpdater, tx TxRunner, maxAttempts int) *QueuedDelivery {
	return &QueuedDelivery{jobs: enqueuer, store: store, tx: tx, maxAttempts: maxAttempts}
}

// Enqueue joins the transaction carried by ctx, if any.
func (q *QueuedDelivery) Enqueue(ctx context.Context, n notification.Notification) error {
	req, err := jobs.NewRequest(jobs.JobSendNotification,
		jobs.SendNotificationPayload{NotificationID: n.ID},
		jobs.SendNotificationKey(n.ID),
	)
	if err != nil {
		return err
	}
	req.MaxAttempts = q.maxAttempts

	if _, err := q.jobs.Create(ctx, req); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return q.store.UpdateStatus(ctx, n.ID, notification.StatusQueued)
}

func (q *QueuedDelivery) Deliver(ctx context.Context, n notification.Notification) error {
	return q.tx.RunInTx(ctx, func(ctx context.Context) error {
		return q.Enqueue(ctx, n)
	})
}
