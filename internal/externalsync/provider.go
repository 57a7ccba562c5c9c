package externalsync

import (
	"context"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
)

// Outcome is the result of syncing one registration to one external event.
type Outcome int

const (
	NotSynced Outcome = iota
	Synced
	AlreadySynced
)

func (o Outcome) String() string {
	switch o {
	case Synced:
		return "synced"
	case AlreadySynced:
		return "already_synced"
	default:
		return "not_synced"
	}
}

// Provider integrates one external system.
type Provider interface {
	Name() string
	// SynchronizationCheck fails when sync cannot proceed for the event.
	SynchronizationCheck(ctx context.Context, ev event.Event) error
	// FindExistingAccount returns nil when no account is linked yet.
	FindExistingAccount(ctx context.Context, reg registration.Registration) (*external.Account, error)
	CreateAccountForUser(ctx context.Context, reg registration.Registration) (external.Account, error)
	RunSynchronization(ctx context.Context, acc external.Account, reg registration.Registration) (Outcome, error)
}

type AccountStore interface {
	FindByUser(ctx context.Context, serviceName, userID string) (external.Account, error)
	FindByRegistration(ctx context.Context, serviceName, registrationID string) (external.Account, error)
	// Create returns external.ErrConflict on a unique key violation.
	Create(ctx context.Context, acc external.Account) error
}

type ExternalEventStore interface {
	// FindForEvent returns external.ErrEventNotFound when no mapping exists and
	// external.ErrDuplicateEvent when more than one does.
	FindForEvent(ctx context.Context, eventID, serviceName string) (external.Event, error)
}

type ExternalRegistrationStore interface {
	Exists(ctx context.Context, externalEventID, externalAccountID string) (bool, error)
	// Create returns external.ErrConflict on a unique key violation.
	Create(ctx context.Context, reg external.Registration) error
}

type Stores struct {
	Accounts      AccountStore
	Events        ExternalEventStore
	Registrations ExternalRegistrationStore
}
