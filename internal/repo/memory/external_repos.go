package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/losol/eventuras-sub008/internal/domain/external"
)

// AccountsRepo enforces the same unique keys as the external_accounts table:
// (service, external id), (service, registration) for per-registration
// accounts and (service, user) for per-user accounts.
type AccountsRepo struct {
	mu    sync.RWMutex
	items map[string]external.Account
}

func NewAccountsRepo() *AccountsRepo {
	return &AccountsRepo{items: make(map[string]external.Account)}
}

func (r *AccountsRepo) FindByUser(_ context.Context, serviceName, userID string) (external.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.items {
		if a.ServiceName == serviceName && a.UserID == userID && a.RegistrationID == nil {
			return a, nil
		}
	}
	return external.Account{}, external.ErrAccountNotFound
}

func (r *AccountsRepo) FindByRegistration(_ context.Context, serviceName, registrationID string) (external.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.items {
		if a.ServiceName == serviceName && a.RegistrationID != nil && *a.RegistrationID == registrationID {
			return a, nil
		}
	}
	return external.Account{}, external.ErrAccountNotFound
}

func (r *AccountsRepo) Create(_ context.Context, acc external.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.items {
		if a.ServiceName != acc.ServiceName {
			continue
		}
		if a.ExternalAccountID == acc.ExternalAccountID {
			return external.ErrConflict
		}
		switch {
		case acc.RegistrationID != nil && a.RegistrationID != nil && *a.RegistrationID == *acc.RegistrationID:
			return external.ErrConflict
		case acc.RegistrationID == nil && a.RegistrationID == nil && a.UserID == acc.UserID:
			return external.ErrConflict
		}
	}
	r.items[acc.ID] = acc
	return nil
}

func (r *AccountsRepo) All() []external.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]external.Account, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type ExternalEventsRepo struct {
	mu    sync.RWMutex
	items map[string]external.Event
}

func NewExternalEventsRepo() *ExternalEventsRepo {
	return &ExternalEventsRepo{items: make(map[string]external.Event)}
}

func (r *ExternalEventsRepo) Create(_ context.Context, ev external.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.items {
		if e.ServiceName == ev.ServiceName && e.ExternalEventID == ev.ExternalEventID {
			return external.ErrDuplicateEvent
		}
	}
	r.items[ev.ID] = ev
	return nil
}

func (r *ExternalEventsRepo) FindForEvent(_ context.Context, eventID, serviceName string) (external.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []external.Event
	for _, e := range r.items {
		if e.EventID == eventID && e.ServiceName == serviceName {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return external.Event{}, external.ErrEventNotFound
	case 1:
		return found[0], nil
	default:
		return external.Event{}, external.ErrDuplicateEvent
	}
}

func (r *ExternalEventsRepo) ListByEvent(_ context.Context, eventID string) ([]external.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []external.Event{}
	for _, e := range r.items {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ExternalEventsRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return external.ErrEventNotFound
	}
	delete(r.items, id)
	return nil
}

type ExternalRegistrationsRepo struct {
	mu    sync.RWMutex
	items map[string]external.Registration
}

func NewExternalRegistrationsRepo() *ExternalRegistrationsRepo {
	return &ExternalRegistrationsRepo{items: make(map[string]external.Registration)}
}

func (r *ExternalRegistrationsRepo) Exists(_ context.Context, externalEventID, externalAccountID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, x := range r.items {
		if x.ExternalEventID == externalEventID && x.ExternalAccountID == externalAccountID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ExternalRegistrationsRepo) Create(_ context.Context, reg external.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, x := range r.items {
		if x.ExternalEventID == reg.ExternalEventID && x.ExternalAccountID == reg.ExternalAccountID {
			return external.ErrConflict
		}
	}
	r.items[reg.ID] = reg
	return nil
}

func (r *ExternalRegistrationsRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
