package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrSimulatedOutage = errors.New("provider down (simulated)")

type LogNotifierOptions struct {
	// Delay simulates a slow provider.
	Delay time.Duration
	// Fail simulates an outage.
	Fail bool
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	log  *slog.Logger
	opts LogNotifierOptions
}

func NewLogNotifier(log *slog.Logger, opts LogNotifierOptions) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log, opts: opts}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if n.opts.Delay > 0 {
		select {
		case <-time.After(n.opts.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.opts.Fail {
		return ErrSimulatedOutage
	}

	n.log.InfoContext(ctx, "notification.sent",
		"kind", string(msg.Kind),
		"to", msg.To,
		"name", msg.Name,
		"subject", msg.Subject,
		"notification_id", msg.NotificationID,
		"recipient_id", msg.RecipientID,
	)
	return nil
}
