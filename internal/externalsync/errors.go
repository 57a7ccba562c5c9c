package externalsync

import (
	"errors"
	"fmt"

	"github.com/losol/eventuras-sub008/internal/domain/external"
)

var (
	// ErrExternalEventNotFound means the event has no mapping for the provider.
	// Registrations hitting it are skipped, not reported as failures.
	ErrExternalEventNotFound = external.ErrEventNotFound
	// ErrDuplicateExternalEvent means the mapping for the provider is ambiguous.
	ErrDuplicateExternalEvent = external.ErrDuplicateEvent

	ErrRegistrationNotVerified = errors.New("registration is not verified")
	ErrSyncInProgress          = errors.New("synchronization already running for event")
	ErrDuplicateProvider       = errors.New("duplicate sync provider name")
)

// SyncError is a configuration or integration failure raised by one provider.
type SyncError struct {
	Provider string
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("external sync %s: %v", e.Provider, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsSyncError reports whether err carries a SyncError anywhere in its chain.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}
