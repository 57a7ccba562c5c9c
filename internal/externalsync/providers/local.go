package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/losol/eventuras-sub008/internal/domain/registration"
)

// LocalIntegration mints account ids without calling a remote system. It is
// used for systems that import enrollments from Eventuras on their own
// schedule and only need stable ids.
type LocalIntegration struct {
	prefix string
}

func NewLocalIntegration(prefix string) *LocalIntegration {
	return &LocalIntegration{prefix: prefix}
}

func (l *LocalIntegration) CreateExternalAccount(_ context.Context, _ registration.Registration) (string, error) {
	return l.prefix + "-" + uuid.NewString(), nil
}
