package externalsync

import (
	"context"
	"fmt"

	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
)

// AccountStrategy decides which key identifies an existing external account.
type AccountStrategy int

const (
	// PerUser shares one external account across all of a user's registrations.
	PerUser AccountStrategy = iota + 1
	// PerRegistration creates a fresh external account for every registration.
	PerRegistration
)

func ParseAccountStrategy(s string) (AccountStrategy, error) {
	switch s {
	case "per-user", "user":
		return PerUser, nil
	case "per-registration", "registration":
		return PerRegistration, nil
	default:
		return 0, fmt.Errorf("unknown account strategy %q", s)
	}
}

func (s AccountStrategy) String() string {
	switch s {
	case PerUser:
		return "per-user"
	case PerRegistration:
		return "per-registration"
	default:
		return fmt.Sprintf("AccountStrategy(%d)", int(s))
	}
}

func (s AccountStrategy) lookup(ctx context.Context, store AccountStore, serviceName string, reg registration.Registration) (external.Account, error) {
	switch s {
	case PerRegistration:
		return store.FindByRegistration(ctx, serviceName, reg.ID)
	default:
		return store.FindByUser(ctx, serviceName, reg.UserID)
	}
}

// registrationKey is the registration id stored on new accounts.
func (s AccountStrategy) registrationKey(reg registration.Registration) *string {
	if s != PerRegistration {
		return nil
	}
	id := reg.ID
	return &id
}
