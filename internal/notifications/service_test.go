package notifications

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/job"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
	"github.com/losol/eventuras-sub008/internal/jobs"
	"github.com/losol/eventuras-sub008/internal/repo/memory"
)

func emailRequest(sel Selector) Request {
	return Request{
		Kind:     notification.KindEmail,
		Subject:  "Welcome",
		Body:     "See you **soon**",
		Selector: sel,
	}
}

func TestCreateAndSend_SelectorExclusivity(t *testing.T) {
	tests := []struct {
		name string
		sel  Selector
	}{
		{name: "none", sel: Selector{}},
		{
			name: "recipients and participants",
			sel: Selector{
				Recipients:        []string{"a@example.com"},
				EventParticipants: &ParticipantFilter{EventID: eventID},
			},
		},
		{
			name: "recipients and registration",
			sel:  Selector{Recipients: []string{"a@example.com"}, RegistrationID: "r-1"},
		},
		{
			name: "all three",
			sel: Selector{
				Recipients:        []string{"a@example.com"},
				EventParticipants: &ParticipantFilter{EventID: eventID},
				RegistrationID:    "r-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addRegistration("r-1", "u-1", "u1@example.com", "", registration.StatusVerified, 0)
			notifier := newRecordingNotifier()
			svc := f.service(NewDeliveryService(f.store, notifier, DeliveryConfig{}))

			_, err := svc.CreateAndSend(context.Background(), emailRequest(tt.sel))
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, 0, f.store.Count())
		})
	}
}

func TestCreateAndSend_ExplicitRecipients(t *testing.T) {
	f := newFixture(t)
	notifier := newRecordingNotifier()
	svc := f.service(NewDeliveryService(f.store, notifier, DeliveryConfig{}))

	n, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{
		Recipients: []string{"ada@example.com", " ADA@example.com ", "bob@example.com"},
	}))
	require.NoError(t, err)

	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, notification.Statistics{Sent: 2, Errors: 0, Recipients: 2}, n.Stats)
	assert.Equal(t, 1, notifier.count("ada@example.com"))
	assert.Equal(t, 1, notifier.count("bob@example.com"))
	assert.Nil(t, n.EventID)
}

func TestCreateAndSend_RejectsInvalidAddresses(t *testing.T) {
	f := newFixture(t)
	svc := f.service(NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{}))

	_, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{Recipients: []string{"not-an-email"}}))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateAndSend(context.Background(), Request{
		Kind:     notification.KindSMS,
		Body:     "Doors open at 9",
		Selector: Selector{Recipients: []string{"12345"}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, 0, f.store.Count())
}

func TestCreateAndSend_RequiresContent(t *testing.T) {
	f := newFixture(t)
	svc := f.service(NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{}))

	req := emailRequest(Selector{Recipients: []string{"a@example.com"}})
	req.Subject = " "
	_, err := svc.CreateAndSend(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateAndSend(context.Background(), Request{Kind: "fax", Body: "x", Selector: req.Selector})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateAndSend_EventParticipants(t *testing.T) {
	f := newFixture(t)
	f.addRegistration("r-1", "u-1", "u1@example.com", "+4790000001", registration.StatusVerified, 0)
	f.addRegistration("r-2", "u-2", "u2@example.com", "", registration.StatusAttended, 1)
	f.addRegistration("r-3", "u-3", "u3@example.com", "", registration.StatusCancelled, 2)
	f.addRegistration("r-4", "u-4", "", "", registration.StatusVerified, 3)
	f.addRegistration("r-5", "u-5", "U1@example.com", "", registration.StatusDraft, 4)

	notifier := newRecordingNotifier()
	svc := f.service(NewDeliveryService(f.store, notifier, DeliveryConfig{}))

	n, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{
		EventParticipants: &ParticipantFilter{EventID: eventID},
	}))
	require.NoError(t, err)

	require.NotNil(t, n.EventID)
	assert.Equal(t, eventID, *n.EventID)
	assert.Equal(t, 2, n.Stats.Recipients)

	recipients, err := f.store.ListRecipients(context.Background(), n.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "u1@example.com", recipients[0].Address)
	require.NotNil(t, recipients[0].RegistrationID)
	assert.Equal(t, "r-1", *recipients[0].RegistrationID)
	assert.Equal(t, "u2@example.com", recipients[1].Address)
	assert.Equal(t, 0, notifier.count("u3@example.com"))
}

func TestCreateAndSend_ParticipantStatusFilter(t *testing.T) {
	f := newFixture(t)
	f.addRegistration("r-1", "u-1", "u1@example.com", "", registration.StatusVerified, 0)
	f.addRegistration("r-2", "u-2", "u2@example.com", "", registration.StatusWaitingList, 1)

	svc := f.service(NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{}))

	n, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{
		EventParticipants: &ParticipantFilter{
			EventID:  eventID,
			Statuses: []registration.Status{registration.StatusWaitingList},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, n.Stats.Recipients)

	_, err = svc.CreateAndSend(context.Background(), emailRequest(Selector{
		EventParticipants: &ParticipantFilter{
			EventID:  eventID,
			Statuses: []registration.Status{"pending"},
		},
	}))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateAndSend_ProductInfersEvent(t *testing.T) {
	f := newFixture(t)
	f.addRegistration("r-1", "u-1", "u1@example.com", "", registration.StatusVerified, 0)
	f.addRegistration("r-2", "u-2", "u2@example.com", "", registration.StatusVerified, 1)
	f.registrations.AddProduct("r-2", productID)

	svc := f.service(NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{}))

	n, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{
		EventParticipants: &ParticipantFilter{ProductID: productID},
	}))
	require.NoError(t, err)

	require.NotNil(t, n.EventID)
	require.NotNil(t, n.ProductID)
	assert.Equal(t, eventID, *n.EventID)
	assert.Equal(t, productID, *n.ProductID)
	assert.Equal(t, 1, n.Stats.Recipients)
}

func TestCreateAndSend_ProductEventMismatch(t *testing.T) {
	f := newFixture(t)
	f.addRegistration("r-1", "u-1", "u1@example.com", "", registration.StatusVerified, 0)
	svc := f.service(NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{}))

	_, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{
		EventParticipants: &ParticipantFilter{EventID: otherEvID, ProductID: productID},
	}))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, f.store.Count())
}

func TestCreateAndSend_UnknownEvent(t *testing.T) {
	f := newFixture(t)
	svc := f.service(NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{}))

	_, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{
		EventParticipants: &ParticipantFilter{EventID: "nope"},
	}))
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, event.ErrNotFound)
}

func TestCreateAndSend_NoRecipientsResolved(t *testing.T) {
	f := newFixture(t)
	f.addRegistration("r-1", "u-1", "u1@example.com", "", registration.StatusVerified, 0)
	svc := f.service(NewDeliveryService(f.store, newRecordingNotifier(), DeliveryConfig{}))

	// nobody has a phone number
	_, err := svc.CreateAndSend(context.Background(), Request{
		Kind:     notification.KindSMS,
		Body:     "Doors open at 9",
		Selector: Selector{EventParticipants: &ParticipantFilter{EventID: eventID}},
	})
	require.ErrorIs(t, err, ErrNoRecipients)
	assert.Equal(t, 0, f.store.Count())
}

func TestCreateAndSend_SingleRegistrationSMS(t *testing.T) {
	f := newFixture(t)
	f.addRegistration("r-1", "u-1", "u1@example.com", "+4790000001", registration.StatusVerified, 0)

	m := &mockNotifier{}
	m.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.Kind == notification.KindSMS && msg.To == "+4790000001" && msg.Body == "Doors open at 9"
	})).Return(nil).Once()

	svc := f.service(NewDeliveryService(f.store, m, DeliveryConfig{}))

	n, err := svc.CreateAndSend(context.Background(), Request{
		Kind:     notification.KindSMS,
		Body:     "Doors open at 9",
		Selector: Selector{RegistrationID: "r-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, n.Status)
	require.NotNil(t, n.EventID)
	assert.Equal(t, eventID, *n.EventID)
	m.AssertExpectations(t)

	_, err = svc.CreateAndSend(context.Background(), Request{
		Kind:     notification.KindSMS,
		Body:     "x",
		Selector: Selector{RegistrationID: "missing"},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, registration.ErrNotFound)
}

func TestCreateAndSend_DirectDeliveryPartialFailure(t *testing.T) {
	f := newFixture(t)
	notifier := newRecordingNotifier("bad@example.com")
	svc := f.service(NewDeliveryService(f.store, notifier, DeliveryConfig{}))

	n, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{
		Recipients: []string{"good@example.com", "bad@example.com"},
	}))
	require.NoError(t, err)

	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, notification.Statistics{Sent: 1, Errors: 1, Recipients: 2}, n.Stats)

	bad := f.recipientByAddress(t, n.ID, "bad@example.com")
	require.NotNil(t, bad.Error)
	assert.Contains(t, *bad.Error, "unavailable")
}

func TestCreateAndSend_Queued(t *testing.T) {
	f := newFixture(t)
	notifier := newRecordingNotifier()
	queued := NewQueuedDelivery(f.jobs, f.store, nil, 7)
	svc := f.service(queued)

	n, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{Recipients: []string{"a@example.com"}}))
	require.NoError(t, err)

	assert.Equal(t, notification.StatusQueued, n.Status)
	assert.Equal(t, 0, notifier.count("a@example.com"))

	all := f.jobs.All()
	require.Len(t, all, 1)
	assert.Equal(t, string(jobs.JobSendNotification), all[0].Type)
	assert.Equal(t, job.StatusPending, all[0].Status)
	assert.Equal(t, 7, all[0].MaxAttempts)

	payload, err := jobs.DecodePayload(all[0])
	require.NoError(t, err)
	assert.Equal(t, jobs.SendNotificationPayload{NotificationID: n.ID}, payload)
}

// unreadableStore stores notifications but fails every read back.
type unreadableStore struct {
	*memory.NotificationsRepo
	err error
}

func (s unreadableStore) GetByID(context.Context, string) (notification.Notification, error) {
	return notification.Notification{}, s.err
}

type deliverFunc func(ctx context.Context, n notification.Notification) error

func (f deliverFunc) Deliver(ctx context.Context, n notification.Notification) error {
	return f(ctx, n)
}

func TestCreateAndSend_ReloadFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	store := unreadableStore{NotificationsRepo: f.store, err: errors.New("db down")}
	delivered := 0
	svc := NewService(f.events, f.products, f.registrations, store, memory.TxManager{},
		deliverFunc(func(context.Context, notification.Notification) error {
			delivered++
			return nil
		}),
		ServiceConfig{PageSize: 2, Logger: log},
	)

	n, err := svc.CreateAndSend(context.Background(), emailRequest(Selector{Recipients: []string{"a@example.com"}}))
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	assert.NotEmpty(t, n.ID)
	assert.Contains(t, buf.String(), "notification.reload_failed")
	assert.Contains(t, buf.String(), "db down")
}
