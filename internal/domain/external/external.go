// Package external holds the local records that link users, registrations
// and events to their counterparts in third-party systems.
package external

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Account is a user's identity in one external service. RegistrationID is set
// only for services that mint one account per registration.
type Account struct {
	ID                string    `json:"id"`
	ServiceName       string    `json:"serviceName"`
	ExternalAccountID string    `json:"externalAccountId"`
	UserID            string    `json:"userId"`
	RegistrationID    *string   `json:"registrationId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Event maps a local event to the matching event or course in an external service.
type Event struct {
	ID              string    `json:"id"`
	EventID         string    `json:"eventId"`
	ServiceName     string    `json:"serviceName"`
	ExternalEventID string    `json:"externalEventId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Registration records that a registration was enrolled into an external event
// through an external account.
type Registration struct {
	ID                string    `json:"id"`
	ExternalEventID   string    `json:"externalEventId"`
	ExternalAccountID string    `json:"externalAccountId"`
	RegistrationID    string    `json:"registrationId"`
	CreatedAt         time.Time `json:"createdAt"`
}

var (
	ErrAccountNotFound = errors.New("external account not found")
	ErrEventNotFound   = errors.New("external event not found")
	// ErrDuplicateEvent is returned when a (service, external event id) pair
	// is already mapped, or when one local event maps to several external events
	// of the same service.
	ErrDuplicateEvent = errors.New("duplicate external event")
	// ErrConflict signals a unique key violation on insert.
	ErrConflict = errors.New("external record already exists")
)

func NewAccount(serviceName, externalAccountID, userID string, registrationID *string) Account {
	return Account{
		ID:                uuid.NewString(),
		ServiceName:       serviceName,
		ExternalAccountID: externalAccountID,
		UserID:            userID,
		RegistrationID:    registrationID,
		CreatedAt:         time.Now().UTC(),
	}
}

func NewEvent(eventID, serviceName, externalEventID string) Event {
	return Event{
		ID:              uuid.NewString(),
		EventID:         eventID,
		ServiceName:     serviceName,
		ExternalEventID: externalEventID,
		CreatedAt:       time.Now().UTC(),
	}
}

func NewRegistration(externalEventID, externalAccountID, registrationID string) Registration {
	return Registration{
		ID:                uuid.NewString(),
		ExternalEventID:   externalEventID,
		ExternalAccountID: externalAccountID,
		RegistrationID:    registrationID,
		CreatedAt:         time.Now().UTC(),
	}
}
