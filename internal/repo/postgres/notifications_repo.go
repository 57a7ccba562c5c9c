package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/observability"
	"github.com/losol/eventuras-sub008/internal/utils"
)

type NotificationsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewNotificationsRepo(db DB, prom *observability.Prom) *NotificationsRepo {
	return &NotificationsRepo{db: db, prom: prom}
}

func (r *NotificationsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const notificationColumns = `id, kind, subject, message,
		organization_id, event_id, product_id, created_by_user_id,
		status, sent_count, error_count, recipient_count,
		created_at, updated_at, status_updated_at`

const recipientColumns = `id, notification_id, user_id, registration_id, name, address,
		status, attempts, sent_at, error, created_at, updated_at`

var recipientCopyColumns = []string{
	"id", "notification_id", "user_id", "registration_id", "name", "address",
	"status", "attempts", "created_at", "updated_at",
}

func scanNotification(row pgx.Row) (notification.Notification, error) {
	var n notification.Notification
	var kind, status string

	err := row.Scan(
		&n.ID, &kind, &n.Subject, &n.Message,
		&n.OrganizationID, &n.EventID, &n.ProductID, &n.CreatedByUserID,
		&status, &n.Stats.Sent, &n.Stats.Errors, &n.Stats.Recipients,
		&n.CreatedAt, &n.UpdatedAt, &n.StatusUpdatedAt,
	)
	if err != nil {
		return notification.Notification{}, err
	}
	n.Kind = notification.Kind(kind)
	n.Status = notification.Status(status)
	return n, nil
}

func scanRecipient(row pgx.Row) (notification.Recipient, error) {
	var rc notification.Recipient
	var status string

	err := row.Scan(
		&rc.ID, &rc.NotificationID, &rc.UserID, &rc.RegistrationID, &rc.Name, &rc.Address,
		&status, &rc.Attempts, &rc.SentAt, &rc.Error, &rc.CreatedAt, &rc.UpdatedAt,
	)
	if err != nil {
		return notification.Recipient{}, err
	}
	rc.Status = notification.RecipientStatus(status)
	return rc, nil
}

// Create stores the notification and its recipients. Recipients are written
// with COPY, so callers wanting atomicity should run it inside a transaction.
func (r *NotificationsRepo) Create(ctx context.Context, n notification.Notification, recipients []notification.Recipient) error {
	q := querier(ctx, r.db)

	err := r.observe("notifications.create", func() error {
		_, err := q.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, n.ID, string(n.Kind), n.Subject, n.Message,
			n.OrganizationID, n.EventID, n.ProductID, n.CreatedByUserID,
			string(n.Status), n.Stats.Sent, n.Stats.Errors, len(recipients),
			n.CreatedAt, n.UpdatedAt, n.StatusUpdatedAt)
		return err
	})
	if err != nil {
		return err
	}

	if len(recipients) == 0 {
		return nil
	}

	return r.observe("notifications.create_recipients", func() error {
		copied, err := q.CopyFrom(ctx,
			pgx.Identifier{"notification_recipients"},
			recipientCopyColumns,
			pgx.CopyFromSlice(len(recipients), func(i int) ([]any, error) {
				rc := recipients[i]
				return []any{
					rc.ID, n.ID, rc.UserID, rc.RegistrationID, rc.Name, rc.Address,
					string(rc.Status), rc.Attempts, rc.CreatedAt, rc.UpdatedAt,
				}, nil
			}),
		)
		if err != nil {
			return err
		}
		if int(copied) != len(recipients) {
			return fmt.Errorf("copied %d of %d recipients", copied, len(recipients))
		}
		return nil
	})
}

func (r *NotificationsRepo) GetByID(ctx context.Context, id string) (notification.Notification, error) {
	var n notification.Notification

	err := r.observe("notifications.get_by_id", func() error {
		var err error
		n, err = scanNotification(querier(ctx, r.db).QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1
	`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, err
	}
	return n, nil
}

// ListCursor pages notifications newest first.
func (r *NotificationsRepo) ListCursor(
	ctx context.Context,
	f notification.ListFilter,
	limit int,
	after utils.Cursor,
) (items []notification.Notification, nextCursor *string, hasMore bool, err error) {
	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if f.EventID != nil {
		conds = append(conds, fmt.Sprintf("event_id = $%d", argsPos))
		args = append(args, *f.EventID)
		argsPos++
	}
	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argsPos))
		args = append(args, string(*f.Status))
		argsPos++
	}

	conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argsPos, argsPos+1))
	args = append(args, after.At, after.ID)
	argsPos += 2

	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + strings.Join(conds, " AND ")
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argsPos)
	args = append(args, limit+1)

	out := make([]notification.Notification, 0, limit+1)
	err = r.observe("notifications.list_cursor", func() error {
		rows, qerr := querier(ctx, r.db).Query(ctx, q, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()

		for rows.Next() {
			n, scanErr := scanNotification(rows)
			if scanErr != nil {
				return scanErr
			}
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, false, err
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]

		cur, encErr := utils.EncodeCursor(last.CreatedAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}
	return out, nextCursor, hasMore, nil
}

func (r *NotificationsRepo) ListRecipients(ctx context.Context, notificationID string) ([]notification.Recipient, error) {
	var out []notification.Recipient

	err := r.observe("notifications.list_recipients", func() error {
		rows, err := querier(ctx, r.db).Query(ctx, `
		SELECT `+recipientColumns+`
		FROM notification_recipients
		WHERE notification_id = $1
		ORDER BY created_at ASC, id ASC
	`, notificationID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rc, err := scanRecipient(rows)
			if err != nil {
				return err
			}
			out = append(out, rc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimRecipient flips a recipient to sending so only one worker delivers it.
// Pending and failed recipients can be claimed, as can sending ones whose
// claim is older than staleAfter.
func (r *NotificationsRepo) ClaimRecipient(ctx context.Context, recipientID string, staleAfter time.Duration) (notification.Recipient, error) {
	secs := int64(staleAfter.Seconds())
	if secs <= 0 {
		secs = 300
	}

	var rc notification.Recipient
	err := r.observe("notifications.claim_recipient", func() error {
		var err error
		rc, err = scanRecipient(querier(ctx, r.db).QueryRow(ctx, `
		UPDATE notification_recipients
		SET status = 'sending',
		    attempts = attempts + 1,
		    error = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND (status IN ('pending', 'failed')
		       OR (status = 'sending' AND updated_at < NOW() - ($2 * INTERVAL '1 second')))
		RETURNING `+recipientColumns, recipientID, secs))
		return err
	})
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return notification.Recipient{}, err
	}

	// Not claimable. Work out why.
	var status string
	var sentAt *time.Time
	err = r.observe("notifications.claim_recipient.status", func() error {
		return querier(ctx, r.db).QueryRow(ctx, `
		SELECT status, sent_at
		FROM notification_recipients
		WHERE id = $1
	`, recipientID).Scan(&status, &sentAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.Recipient{}, notification.ErrNotFound
		}
		return notification.Recipient{}, err
	}

	if sentAt != nil || notification.RecipientStatus(status) == notification.RecipientSent {
		return notification.Recipient{}, notification.ErrAlreadySent
	}
	return notification.Recipient{}, notification.ErrInProgress
}

func (r *NotificationsRepo) MarkRecipientSent(ctx context.Context, recipientID string) error {
	return r.execOne(ctx, "notifications.mark_recipient_sent", `
		UPDATE notification_recipients
		SET status = 'sent',
		    sent_at = NOW(),
		    error = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, recipientID)
}

func (r *NotificationsRepo) MarkRecipientFailed(ctx context.Context, recipientID, errMsg string) error {
	return r.execOne(ctx, "notifications.mark_recipient_failed", `
		UPDATE notification_recipients
		SET status = 'failed',
		    error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, recipientID, errMsg)
}

// UpdateStatus only touches status_updated_at when the status changes.
func (r *NotificationsRepo) UpdateStatus(ctx context.Context, id string, status notification.Status) error {
	return r.execOne(ctx, "notifications.update_status", `
		UPDATE notifications
		SET status_updated_at = CASE WHEN status <> $2 THEN NOW() ELSE status_updated_at END,
		    status = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, string(status))
}

// RefreshStatistics recomputes the counters from the recipient rows.
func (r *NotificationsRepo) RefreshStatistics(ctx context.Context, id string) (notification.Statistics, error) {
	var st notification.Statistics

	err := r.observe("notifications.refresh_statistics", func() error {
		return querier(ctx, r.db).QueryRow(ctx, `
		UPDATE notifications n
		SET sent_count = c.sent,
		    error_count = c.failed,
		    recipient_count = c.total,
		    updated_at = NOW()
		FROM (
			SELECT COUNT(*) FILTER (WHERE status = 'sent')   AS sent,
			       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			       COUNT(*)                                  AS total
			FROM notification_recipients
			WHERE notification_id = $1
		) c
		WHERE n.id = $1
		RETURNING n.sent_count, n.error_count, n.recipient_count
	`, id).Scan(&st.Sent, &st.Errors, &st.Recipients)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.Statistics{}, notification.ErrNotFound
		}
		return notification.Statistics{}, err
	}
	return st, nil
}

func (r *NotificationsRepo) execOne(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag

	err := r.observe(op, func() error {
		var err error
		tag, err = querier(ctx, r.db).Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}
