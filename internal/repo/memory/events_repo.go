package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
)

type EventsRepo struct {
	mu    sync.RWMutex
	items map[string]event.Event
}

func NewEventsRepo(events ...event.Event) *EventsRepo {
	r := &EventsRepo{items: make(map[string]event.Event)}
	for _, e := range events {
		r.items[e.ID] = e
	}
	return r
}

func (r *EventsRepo) Put(e event.Event) {
	r.mu.Lock()
	r.items[e.ID] = e
	r.mu.Unlock()
}

func (r *EventsRepo) GetByID(_ context.Context, id string) (event.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.items[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

// RegistrationsRepo lists registrations ordered by creation time, like the
// postgres implementation.
type RegistrationsRepo struct {
	mu       sync.RWMutex
	items    []registration.Registration
	products map[string][]string
}

func NewRegistrationsRepo(regs ...registration.Registration) *RegistrationsRepo {
	r := &RegistrationsRepo{products: make(map[string][]string)}
	r.Put(regs...)
	return r
}

// AddProduct records that the registration ordered productID.
func (r *RegistrationsRepo) AddProduct(registrationID, productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[registrationID] = append(r.products[registrationID], productID)
}

func (r *RegistrationsRepo) Put(regs ...registration.Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, regs...)
	sort.SliceStable(r.items, func(i, j int) bool {
		if r.items[i].CreatedAt.Equal(r.items[j].CreatedAt) {
			return r.items[i].ID < r.items[j].ID
		}
		return r.items[i].CreatedAt.Before(r.items[j].CreatedAt)
	})
}

func (r *RegistrationsRepo) GetByID(_ context.Context, id string, _ registration.LoadOptions) (registration.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.items {
		if reg.ID == id {
			return reg, nil
		}
	}
	return registration.Registration{}, registration.ErrNotFound
}

func (r *RegistrationsRepo) List(_ context.Context, f registration.Filter, p registration.Paging, _ registration.LoadOptions) ([]registration.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]registration.Registration, 0)
	for _, reg := range r.items {
		if matches(reg, f) && (f.ProductID == "" || slices.Contains(r.products[reg.ID], f.ProductID)) {
			matched = append(matched, reg)
		}
	}

	if p.Offset >= len(matched) {
		return []registration.Registration{}, nil
	}
	end := len(matched)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	out := make([]registration.Registration, end-p.Offset)
	copy(out, matched[p.Offset:end])
	return out, nil
}

func matches(reg registration.Registration, f registration.Filter) bool {
	if f.EventID != "" && reg.EventID != f.EventID {
		return false
	}
	if f.VerifiedOnly && !reg.Status.IsVerifiedOrLater() {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, reg.Status) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, reg.Type) {
		return false
	}
	return true
}
