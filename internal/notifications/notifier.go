package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/losol/eventuras-sub008/internal/domain/notification"
)

var ErrNoTransport = errors.New("no notifier for kind")

// Message is one outbound send to one recipient.
type Message struct {
	Kind           notification.Kind
	To             string
	Name           string
	Subject        string
	Body           string
	NotificationID string
	RecipientID    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Transports routes a message to the notifier registered for its kind.
type Transports map[notification.Kind]Notifier

func (t Transports) Send(ctx context.Context, msg Message) error {
	n, ok := t[msg.Kind]
	if !ok || n == nil {
		return fmt.Errorf("%w: %s", ErrNoTransport, msg.Kind)
	}
	return n.Send(ctx, msg)
}
