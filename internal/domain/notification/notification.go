package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindEmail Kind = "email"
	KindSMS   Kind = "sms"
)

func (k Kind) IsValid() bool {
	return k == KindEmail || k == KindSMS
}

type Status string

const (
	StatusNew     Status = "new"
	StatusQueued  Status = "queued"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusQueued, StatusSending, StatusSent, StatusFailed:
		return true
	default:
		return false
	}
}

type Statistics struct {
	Sent       int `json:"sent"`
	Errors     int `json:"errors"`
	Recipients int `json:"recipients"`
}

type Notification struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	Subject         string     `json:"subject,omitempty"`
	Message         string     `json:"message"`
	OrganizationID  *string    `json:"organizationId,omitempty"`
	EventID         *string    `json:"eventId,omitempty"`
	ProductID       *string    `json:"productId,omitempty"`
	CreatedByUserID *string    `json:"createdByUserId,omitempty"`
	Status          Status     `json:"status"`
	Stats           Statistics `json:"statistics"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StatusUpdatedAt time.Time  `json:"statusUpdatedAt"`
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSending RecipientStatus = "sending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

type Recipient struct {
	ID             string          `json:"id"`
	NotificationID string          `json:"notificationId"`
	UserID         *string         `json:"userId,omitempty"`
	RegistrationID *string         `json:"registrationId,omitempty"`
	Name           string          `json:"name,omitempty"`
	Address        string          `json:"address"`
	Status         RecipientStatus `json:"status"`
	Attempts       int             `json:"attempts"`
	SentAt         *time.Time      `json:"sentAt,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ListFilter narrows a notification listing. Nil fields do not filter.
type ListFilter struct {
	EventID *string
	Status  *Status
}

var (
	ErrNotFound = errors.New("notification not found")
	// ErrAlreadySent and ErrInProgress are returned when a recipient cannot be
	// claimed for delivery.
	ErrAlreadySent = errors.New("recipient already sent")
	ErrInProgress  = errors.New("recipient delivery in progress")
)

func New(kind Kind, subject, message string) Notification {
	now := time.Now().UTC()
	return Notification{
		ID:              uuid.NewString(),
		Kind:            kind,
		Subject:         subject,
		Message:         message,
		Status:          StatusNew,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusUpdatedAt: now,
	}
}

func NewRecipient(notificationID, name, address string) Recipient {
	now := time.Now().UTC()
	return Recipient{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Name:           name,
		Address:        address,
		Status:         RecipientPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
