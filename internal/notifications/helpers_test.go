package notifications

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/domain/product"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
	"github.com/losol/eventuras-sub008/internal/domain/user"
	"github.com/losol/eventuras-sub008/internal/repo/memory"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// recordingNotifier counts sends per address and fails for listed addresses.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    map[string]int
	failFor map[string]bool
}

func newRecordingNotifier(failFor ...string) *recordingNotifier {
	n := &recordingNotifier{sent: make(map[string]int), failFor: make(map[string]bool)}
	for _, a := range failFor {
		n.failFor[a] = true
	}
	return n
}

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failFor[msg.To] {
		return fmt.Errorf("mailbox %s unavailable", msg.To)
	}
	n.sent[msg.To]++
	return nil
}

func (n *recordingNotifier) heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failFor = make(map[string]bool)
}

func (n *recordingNotifier) count(addr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[addr]
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveNotificationSend(kind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[kind+"/"+result]++
}

type fixture struct {
	events        *memory.EventsRepo
	products      *memory.ProductsRepo
	registrations *memory.RegistrationsRepo
	store         *memory.NotificationsRepo
	jobs          *memory.JobsRepo
}

const (
	eventID   = "ev-1"
	otherEvID = "ev-2"
	productID = "prod-1"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		events: memory.NewEventsRepo(
			event.Event{ID: eventID, Title: "Course", StartAt: now},
			event.Event{ID: otherEvID, Title: "Other", StartAt: now},
		),
		products:      memory.NewProductsRepo(product.Product{ID: productID, EventID: eventID, Name: "Dinner"}),
		registrations: memory.NewRegistrationsRepo(),
		store:         memory.NewNotificationsRepo(),
		jobs:          memory.NewJobsRepo(),
	}
	return f
}

func (f *fixture) addRegistration(id, userID, email, phone string, status registration.Status, offset int) registration.Registration {
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(offset) * time.Minute)
	reg := registration.Registration{
		ID:        id,
		EventID:   eventID,
		UserID:    userID,
		Status:    status,
		Type:      registration.TypeParticipant,
		CreatedAt: created,
		UpdatedAt: created,
		User: &user.User{
			ID:          userID,
			Name:        "User " + userID,
			Email:       email,
			PhoneNumber: phone,
		},
	}
	f.registrations.Put(reg)
	return reg
}

func (f *fixture) service(delivery Delivery) *Service {
	return NewService(f.events, f.products, f.registrations, f.store, memory.TxManager{}, delivery, ServiceConfig{PageSize: 2})
}

// storeNotification creates a notification with the given addresses directly.
func (f *fixture) storeNotification(t *testing.T, addrs ...string) notification.Notification {
	t.Helper()

	n := notification.New(notification.KindEmail, "Hello", "Body")
	recipients := make([]notification.Recipient, 0, len(addrs))
	for _, a := range addrs {
		recipients = append(recipients, notification.NewRecipient(n.ID, "", a))
	}
	if err := f.store.Create(context.Background(), n, recipients); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return n
}

func (f *fixture) recipientByAddress(t *testing.T, notificationID, addr string) notification.Recipient {
	t.Helper()

	list, err := f.store.ListRecipients(context.Background(), notificationID)
	if err != nil {
		t.Fatalf("ListRecipients: %v", err)
	}
	for _, rc := range list {
		if rc.Address == addr {
			return rc
		}
	}
	t.Fatalf("recipient %s not found", addr)
	return notification.Recipient{}
}
