package externalsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
)

// AccountCreator is the one call every integration must implement: create
// the account remotely and return the id the external system assigned.
type AccountCreator interface {
	CreateExternalAccount(ctx context.Context, reg registration.Registration) (string, error)
}

// EventEnroller is implemented by integrations that must tell the external
// system about each enrollment. Without it enrollment is only recorded locally.
type EventEnroller interface {
	RegisterUserToExternalEvent(ctx context.Context, ev external.Event, acc external.Account, reg registration.Registration) error
}

// ReadinessChecker lets an integration validate the mapped external event
// during the pre-flight check, e.g. by looking it up remotely.
type ReadinessChecker interface {
	CheckExternalEvent(ctx context.Context, ev external.Event) error
}

// StandardProvider implements Provider on top of the external stores. The
// account lookup key comes from its AccountStrategy.
type StandardProvider struct {
	name        string
	strategy    AccountStrategy
	integration AccountCreator
	enroller    EventEnroller
	checker     ReadinessChecker
	stores      Stores
}

func NewStandardProvider(name string, strategy AccountStrategy, integration AccountCreator, stores Stores) (*StandardProvider, error) {
	if name == "" {
		return nil, errors.New("provider name is required")
	}
	if strategy != PerUser && strategy != PerRegistration {
		return nil, fmt.Errorf("provider %s: invalid account strategy %v", name, strategy)
	}
	if integration == nil {
		return nil, fmt.Errorf("provider %s: integration is required", name)
	}
	if stores.Accounts == nil || stores.Events == nil || stores.Registrations == nil {
		return nil, fmt.Errorf("provider %s: stores are required", name)
	}

	p := &StandardProvider{
		name:        name,
		strategy:    strategy,
		integration: integration,
		stores:      stores,
	}
	if e, ok := integration.(EventEnroller); ok {
		p.enroller = e
	}
	if c, ok := integration.(ReadinessChecker); ok {
		p.checker = c
	}
	return p, nil
}

func (p *StandardProvider) Name() string { return p.name }

func (p *StandardProvider) Strategy() AccountStrategy { return p.strategy }

func (p *StandardProvider) SynchronizationCheck(ctx context.Context, ev event.Event) error {
	ext, err := p.stores.Events.FindForEvent(ctx, ev.ID, p.name)
	if err != nil {
		return &SyncError{Provider: p.name, Err: err}
	}

	if p.checker != nil {
		if err := p.checker.CheckExternalEvent(ctx, ext); err != nil {
			return &SyncError{Provider: p.name, Err: fmt.Errorf("check external event %s: %w", ext.ExternalEventID, err)}
		}
	}
	return nil
}

func (p *StandardProvider) FindExistingAccount(ctx context.Context, reg registration.Registration) (*external.Account, error) {
	acc, err := p.strategy.lookup(ctx, p.stores.Accounts, p.name, reg)
	if err != nil {
		if errors.Is(err, external.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// CreateAccountForUser creates the remote account and records it locally.
// When a concurrent caller wins the insert, the stored account is returned.
func (p *StandardProvider) CreateAccountForUser(ctx context.Context, reg registration.Registration) (external.Account, error) {
	if !reg.Status.IsVerifiedOrLater() {
		return external.Account{}, fmt.Errorf("%w: registration %s has status %s", ErrRegistrationNotVerified, reg.ID, reg.Status)
	}

	externalID, err := p.integration.CreateExternalAccount(ctx, reg)
	if err != nil {
		return external.Account{}, &SyncError{Provider: p.name, Err: fmt.Errorf("create external account: %w", err)}
	}

	acc := external.NewAccount(p.name, externalID, reg.UserID, p.strategy.registrationKey(reg))

	err = p.stores.Accounts.Create(ctx, acc)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, external.ErrConflict) {
		return external.Account{}, fmt.Errorf("store external account: %w", err)
	}

	existing, lookupErr := p.FindExistingAccount(ctx, reg)
	if lookupErr != nil {
		return external.Account{}, fmt.Errorf("resolve conflicting account: %w", lookupErr)
	}
	if existing == nil {
		return external.Account{}, fmt.Errorf("external account %s conflicts with an account owned by another %s: %w",
			externalID, p.ownerNoun(), err)
	}
	return *existing, nil
}

func (p *StandardProvider) RunSynchronization(ctx context.Context, acc external.Account, reg registration.Registration) (Outcome, error) {
	ext, err := p.stores.Events.FindForEvent(ctx, reg.EventID, p.name)
	if err != nil {
		return NotSynced, &SyncError{Provider: p.name, Err: err}
	}

	exists, err := p.stores.Registrations.Exists(ctx, ext.ID, acc.ID)
	if err != nil {
		return NotSynced, fmt.Errorf("check external registration: %w", err)
	}
	if exists {
		return AlreadySynced, nil
	}

	if p.enroller != nil {
		if err := p.enroller.RegisterUserToExternalEvent(ctx, ext, acc, reg); err != nil {
			return NotSynced, &SyncError{Provider: p.name, Err: fmt.Errorf("enroll into %s: %w", ext.ExternalEventID, err)}
		}
	}

	err = p.stores.Registrations.Create(ctx, external.NewRegistration(ext.ID, acc.ID, reg.ID))
	if err != nil {
		if errors.Is(err, external.ErrConflict) {
			return AlreadySynced, nil
		}
		return NotSynced, fmt.Errorf("store external registration: %w", err)
	}
	return Synced, nil
}

func (p *StandardProvider) ownerNoun() string {
	if p.strategy == PerRegistration {
		return "registration"
	}
	return "user"
}
