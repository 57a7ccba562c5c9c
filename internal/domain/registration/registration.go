package registration

import (
	"errors"
	"time"

	"github.com/losol/eventuras-sub008/internal/domain/user"
)

type Status string

const (
	StatusDraft       Status = "draft"
	StatusCancelled   Status = "cancelled"
	StatusVerified    Status = "verified"
	StatusNotAttended Status = "notattended"
	StatusAttended    Status = "attended"
	StatusFinished    Status = "finished"
	StatusWaitingList Status = "waitinglist"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusCancelled, StatusVerified, StatusNotAttended,
		StatusAttended, StatusFinished, StatusWaitingList:
		return true
	default:
		return false
	}
}

// IsVerifiedOrLater reports whether the registration has been confirmed by the
// organizer. Only those registrations may be exported to external systems.
func (s Status) IsVerifiedOrLater() bool {
	switch s {
	case StatusVerified, StatusNotAttended, StatusAttended, StatusFinished:
		return true
	default:
		return false
	}
}

// VerifiedStatuses lists every status that passes IsVerifiedOrLater.
func VerifiedStatuses() []Status {
	return []Status{StatusVerified, StatusNotAttended, StatusAttended, StatusFinished}
}

type Type string

const (
	TypeParticipant Type = "participant"
	TypeStudent     Type = "student"
	TypeStaff       Type = "staff"
	TypeLecturer    Type = "lecturer"
	TypeArtist      Type = "artist"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeParticipant, TypeStudent, TypeStaff, TypeLecturer, TypeArtist:
		return true
	default:
		return false
	}
}

type Registration struct {
	ID        string     `json:"id"`
	EventID   string     `json:"eventId"`
	UserID    string     `json:"userId"`
	Status    Status     `json:"status"`
	Type      Type       `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	User      *user.User `json:"user,omitempty"`
}

var ErrNotFound = errors.New("registration not found")

// Filter narrows a registration listing. Empty slices mean "no restriction".
type Filter struct {
	EventID      string
	ProductID    string
	Statuses     []Status
	Types        []Type
	VerifiedOnly bool
}

type Paging struct {
	Offset int
	Limit  int
}

type LoadOptions struct {
	IncludeUser bool
}
