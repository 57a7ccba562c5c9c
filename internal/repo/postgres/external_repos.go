package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/observability"
)

type ExternalAccountsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewExternalAccountsRepo(db DB, prom *observability.Prom) *ExternalAccountsRepo {
	return &ExternalAccountsRepo{db: db, prom: prom}
}

func (r *ExternalAccountsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const accountColumns = `id, service_name, external_account_id, user_id, registration_id, created_at`

func (r *ExternalAccountsRepo) findOne(ctx context.Context, op, sql string, args ...any) (external.Account, error) {
	var a external.Account
	err := r.observe(op, func() error {
		return querier(ctx, r.db).QueryRow(ctx, sql, args...).
			Scan(&a.ID, &a.ServiceName, &a.ExternalAccountID, &a.UserID, &a.RegistrationID, &a.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return external.Account{}, external.ErrAccountNotFound
		}
		return external.Account{}, err
	}
	return a, nil
}

// FindByUser only matches accounts that are not bound to a registration.
func (r *ExternalAccountsRepo) FindByUser(ctx context.Context, serviceName, userID string) (external.Account, error) {
	return r.findOne(ctx, "external_accounts.find_by_user", `
		SELECT `+accountColumns+`
		FROM external_accounts
		WHERE service_name = $1 AND user_id = $2 AND registration_id IS NULL
	`, serviceName, userID)
}

func (r *ExternalAccountsRepo) FindByRegistration(ctx context.Context, serviceName, registrationID string) (external.Account, error) {
	return r.findOne(ctx, "external_accounts.find_by_registration", `
		SELECT `+accountColumns+`
		FROM external_accounts
		WHERE service_name = $1 AND registration_id = $2
	`, serviceName, registrationID)
}

func (r *ExternalAccountsRepo) Create(ctx context.Context, acc external.Account) error {
	err := r.observe("external_accounts.create", func() error {
		_, err := querier(ctx, r.db).Exec(ctx, `
		INSERT INTO external_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, acc.ID, acc.ServiceName, acc.ExternalAccountID, acc.UserID, acc.RegistrationID, acc.CreatedAt)
		return err
	})
	if IsUniqueViolation(err) {
		return external.ErrConflict
	}
	return err
}

type ExternalEventsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewExternalEventsRepo(db DB, prom *observability.Prom) *ExternalEventsRepo {
	return &ExternalEventsRepo{db: db, prom: prom}
}

func (r *ExternalEventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ExternalEventsRepo) Create(ctx context.Context, ev external.Event) error {
	err := r.observe("external_events.create", func() error {
		_, err := querier(ctx, r.db).Exec(ctx, `
		INSERT INTO external_events (id, event_id, service_name, external_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.EventID, ev.ServiceName, ev.ExternalEventID, ev.CreatedAt)
		return err
	})
	switch {
	case IsUniqueViolation(err):
		return external.ErrDuplicateEvent
	case isForeignKeyViolation(err):
		return event.ErrNotFound
	}
	return err
}

// FindForEvent reads at most two rows so a second mapping for the same
// service is reported as a duplicate instead of being silently ignored.
func (r *ExternalEventsRepo) FindForEvent(ctx context.Context, eventID, serviceName string) (external.Event, error) {
	var found []external.Event
	err := r.observe("external_events.find_for_event", func() error {
		rows, err := querier(ctx, r.db).Query(ctx, `
		SELECT id, event_id, service_name, external_event_id, created_at
		FROM external_events
		WHERE event_id = $1 AND service_name = $2
		ORDER BY created_at ASC
		LIMIT 2
	`, eventID, serviceName)
		if err != nil {
			return err
		}
		found, err = collectExternalEvents(rows)
		return err
	})
	if err != nil {
		return external.Event{}, err
	}

	switch len(found) {
	case 0:
		return external.Event{}, external.ErrEventNotFound
	case 1:
		return found[0], nil
	default:
		return external.Event{}, external.ErrDuplicateEvent
	}
}

func (r *ExternalEventsRepo) ListByEvent(ctx context.Context, eventID string) ([]external.Event, error) {
	var out []external.Event
	err := r.observe("external_events.list_by_event", func() error {
		rows, err := querier(ctx, r.db).Query(ctx, `
		SELECT id, event_id, service_name, external_event_id, created_at
		FROM external_events
		WHERE event_id = $1
		ORDER BY service_name ASC, created_at ASC
	`, eventID)
		if err != nil {
			return err
		}
		out, err = collectExternalEvents(rows)
		return err
	})
	return out, err
}

func (r *ExternalEventsRepo) Delete(ctx context.Context, id string) error {
	return r.observe("external_events.delete", func() error {
		tag, err := querier(ctx, r.db).Exec(ctx, `DELETE FROM external_events WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return external.ErrEventNotFound
		}
		return nil
	})
}

func collectExternalEvents(rows pgx.Rows) ([]external.Event, error) {
	defer rows.Close()

	out := make([]external.Event, 0, 2)
	for rows.Next() {
		var e external.Event
		if err := rows.Scan(&e.ID, &e.EventID, &e.ServiceName, &e.ExternalEventID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type ExternalRegistrationsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewExternalRegistrationsRepo(db DB, prom *observability.Prom) *ExternalRegistrationsRepo {
	return &ExternalRegistrationsRepo{db: db, prom: prom}
}

func (r *ExternalRegistrationsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ExternalRegistrationsRepo) Exists(ctx context.Context, externalEventID, externalAccountID string) (bool, error) {
	var exists bool
	err := r.observe("external_registrations.exists", func() error {
		return querier(ctx, r.db).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM external_registrations
			WHERE external_event_id = $1 AND external_account_id = $2
		)
	`, externalEventID, externalAccountID).Scan(&exists)
	})
	return exists, err
}

func (r *ExternalRegistrationsRepo) Create(ctx context.Context, reg external.Registration) error {
	err := r.observe("external_registrations.create", func() error {
		_, err := querier(ctx, r.db).Exec(ctx, `
		INSERT INTO external_registrations (id, external_event_id, external_account_id, registration_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, reg.ID, reg.ExternalEventID, reg.ExternalAccountID, reg.RegistrationID, reg.CreatedAt)
		return err
	})
	if IsUniqueViolation(err) {
		return external.ErrConflict
	}
	return err
}
