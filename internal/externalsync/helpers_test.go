package externalsync_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
	"github.com/losol/eventuras-sub008/internal/externalsync"
	"github.com/losol/eventuras-sub008/internal/repo/memory"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeIntegration struct {
	mu      sync.Mutex
	seq     int
	calls   []string
	failFor map[string]error
}

func (f *fakeIntegration) CreateExternalAccount(_ context.Context, reg registration.Registration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, reg.ID)
	if err, ok := f.failFor[reg.UserID]; ok {
		return "", err
	}
	f.seq++
	return fmt.Sprintf("remote-%d", f.seq), nil
}

func (f *fakeIntegration) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type enrollingIntegration struct {
	fakeIntegration
	enrolled []string
}

func (e *enrollingIntegration) RegisterUserToExternalEvent(_ context.Context, ev external.Event, acc external.Account, reg registration.Registration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enrolled = append(e.enrolled, ev.ExternalEventID+"/"+acc.ExternalAccountID)
	return nil
}

type fixture struct {
	events        *memory.EventsRepo
	registrations *memory.RegistrationsRepo
	accounts      *memory.AccountsRepo
	extEvents     *memory.ExternalEventsRepo
	extRegs       *memory.ExternalRegistrationsRepo
}

func newFixture() *fixture {
	return &fixture{
		events:        memory.NewEventsRepo(),
		registrations: memory.NewRegistrationsRepo(),
		accounts:      memory.NewAccountsRepo(),
		extEvents:     memory.NewExternalEventsRepo(),
		extRegs:       memory.NewExternalRegistrationsRepo(),
	}
}

func (f *fixture) stores() externalsync.Stores {
	return externalsync.Stores{
		Accounts:      f.accounts,
		Events:        f.extEvents,
		Registrations: f.extRegs,
	}
}

func (f *fixture) addEvent(t *testing.T, id string) event.Event {
	t.Helper()
	ev := event.Event{ID: id, Title: "Event " + id, StartAt: baseTime.Add(24 * time.Hour), CreatedAt: baseTime}
	f.events.Put(ev)
	return ev
}

func (f *fixture) mapEvent(t *testing.T, eventID, provider, externalID string) external.Event {
	t.Helper()
	ext := external.NewEvent(eventID, provider, externalID)
	require.NoError(t, f.extEvents.Create(context.Background(), ext))
	return ext
}

func (f *fixture) addRegistration(t *testing.T, eventID, userID string, status registration.Status, minute int) registration.Registration {
	t.Helper()
	reg := registration.Registration{
		ID:        fmt.Sprintf("reg-%s-%s", eventID, userID),
		EventID:   eventID,
		UserID:    userID,
		Status:    status,
		Type:      registration.TypeParticipant,
		CreatedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
	f.registrations.Put(reg)
	return reg
}

func (f *fixture) provider(t *testing.T, name string, strategy externalsync.AccountStrategy, integration externalsync.AccountCreator) *externalsync.StandardProvider {
	t.Helper()
	p, err := externalsync.NewStandardProvider(name, strategy, integration, f.stores())
	require.NoError(t, err)
	return p
}

func (f *fixture) orchestrator(t *testing.T, pageSize int, providers ...externalsync.Provider) *externalsync.Orchestrator {
	t.Helper()
	reg, err := externalsync.NewRegistry(providers...)
	require.NoError(t, err)
	return externalsync.NewOrchestrator(reg, f.events, f.registrations, externalsync.OrchestratorConfig{PageSize: pageSize})
}

// stubProvider lets orchestrator tests script provider behaviour directly.
type stubProvider struct {
	name    string
	checkFn func(ctx context.Context, ev event.Event) error
	findFn  func(ctx context.Context, reg registration.Registration) (*external.Account, error)
	syncFn  func(ctx context.Context, acc external.Account, reg registration.Registration) (externalsync.Outcome, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) SynchronizationCheck(ctx context.Context, ev event.Event) error {
	if s.checkFn != nil {
		return s.checkFn(ctx, ev)
	}
	return nil
}

func (s *stubProvider) FindExistingAccount(ctx context.Context, reg registration.Registration) (*external.Account, error) {
	if s.findFn != nil {
		return s.findFn(ctx, reg)
	}
	return &external.Account{ID: "acc-" + reg.UserID, UserID: reg.UserID, ServiceName: s.name}, nil
}

func (s *stubProvider) CreateAccountForUser(_ context.Context, reg registration.Registration) (external.Account, error) {
	return external.Account{ID: "new-" + reg.UserID, UserID: reg.UserID, ServiceName: s.name}, nil
}

func (s *stubProvider) RunSynchronization(ctx context.Context, acc external.Account, reg registration.Registration) (externalsync.Outcome, error) {
	if s.syncFn != nil {
		return s.syncFn(ctx, acc, reg)
	}
	return externalsync.Synced, nil
}
