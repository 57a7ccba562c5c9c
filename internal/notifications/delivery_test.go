package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/losol/eventuras-sub008/internal/domain/notification"
)

func TestDeliveryService_RetryOnlyResendsFailed(t *testing.T) {
	f := newFixture(t)
	n := f.storeNotification(t, "a@example.com", "b@example.com", "c@example.com")

	notifier := newRecordingNotifier("b@example.com")
	metrics := &countingMetrics{}
	d := NewDeliveryService(f.store, notifier, DeliveryConfig{Metrics: metrics})

	err := d.Send(context.Background(), n.ID)
	require.ErrorIs(t, err, ErrPartialDelivery)

	got, err := f.store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, got.Status)
	assert.Equal(t, notification.Statistics{Sent: 2, Errors: 1, Recipients: 3}, got.Stats)

	notifier.heal()
	require.NoError(t, d.Send(context.Background(), n.ID))

	got, err = f.store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
	assert.Equal(t, notification.Statistics{Sent: 3, Errors: 0, Recipients: 3}, got.Stats)

	assert.Equal(t, 1, notifier.count("a@example.com"))
	assert.Equal(t, 1, notifier.count("b@example.com"))
	assert.Equal(t, 1, notifier.count("c@example.com"))

	b := f.recipientByAddress(t, n.ID, "b@example.com")
	assert.Equal(t, 2, b.Attempts)
	assert.NotNil(t, b.SentAt)
	assert.Nil(t, b.Error)

	assert.Equal(t, 3, metrics.counts["email/sent"])
	assert.Equal(t, 1, metrics.counts["email/failed"])
}

func TestDeliveryService_SentNotificationIsNoop(t *testing.T) {
	f := newFixture(t)
	n := f.storeNotification(t, "a@example.com")

	m := &mockNotifier{}
	m.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	d := NewDeliveryService(f.store, m, DeliveryConfig{})

	require.NoError(t, d.Send(context.Background(), n.ID))
	require.NoError(t, d.Send(context.Background(), n.ID))

	m.AssertNumberOfCalls(t, "Send", 1)
}

func TestDeliveryService_SkipsRecipientsHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	n := f.storeNotification(t, "a@example.com", "b@example.com")

	held := f.recipientByAddress(t, n.ID, "b@example.com")
	_, err := f.store.ClaimRecipient(context.Background(), held.ID, time.Minute)
	require.NoError(t, err)

	notifier := newRecordingNotifier()
	d := NewDeliveryService(f.store, notifier, DeliveryConfig{StaleAfter: time.Hour})

	err = d.Send(context.Background(), n.ID)
	require.ErrorIs(t, err, ErrRecipientsBusy)

	assert.Equal(t, 1, notifier.count("a@example.com"))
	assert.Equal(t, 0, notifier.count("b@example.com"))

	got, err := f.store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSending, got.Status)
}

func TestDeliveryService_UnknownNotification(t *testing.T) {
	f := newFixture(t)
	d := NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{})

	err := d.Send(context.Background(), "missing")
	require.ErrorIs(t, err, notification.ErrNotFound)
}

func TestTransports_RoutesByKind(t *testing.T) {
	email := newRecordingNotifier()
	tr := Transports{notification.KindEmail: email}

	require.NoError(t, tr.Send(context.Background(), Message{Kind: notification.KindEmail, To: "a@example.com"}))
	assert.Equal(t, 1, email.count("a@example.com"))

	err := tr.Send(context.Background(), Message{Kind: notification.KindSMS, To: "+4790000001"})
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestFinalStatus(t *testing.T) {
	assert.Equal(t, notification.StatusSent, finalStatus(notification.Statistics{Sent: 2, Recipients: 2}, 0))
	assert.Equal(t, notification.StatusFailed, finalStatus(notification.Statistics{Sent: 1, Errors: 1, Recipients: 2}, 0))
	assert.Equal(t, notification.StatusSending, finalStatus(notification.Statistics{Sent: 1, Recipients: 2}, 1))
}
