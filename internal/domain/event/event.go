package event

import (
	"errors"
	"time"
)

type Event struct {
	ID             string    `json:"id"`
	OrganizationID *string   `json:"organizationId,omitempty"`
	Title          string    `json:"title"`
	City           string    `json:"city,omitempty"`
	StartAt        time.Time `json:"startAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

var ErrNotFound = errors.New("event not found")
