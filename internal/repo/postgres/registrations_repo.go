package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/losol/eventuras-sub008/internal/domain/registration"
	"github.com/losol/eventuras-sub008/internal/domain/user"
	"github.com/losol/eventuras-sub008/internal/observability"
)

type RegistrationsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewRegistrationsRepo(db DB, prom *observability.Prom) *RegistrationsRepo {
	return &RegistrationsRepo{db: db, prom: prom}
}

func (r *RegistrationsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

var registrationColumns = []string{
	"r.id", "r.event_id", "r.user_id", "r.status", "r.type", "r.created_at", "r.updated_at",
}

var userColumns = []string{
	"u.id", "u.name", "u.email", "u.phone_number", "u.created_at", "u.updated_at",
}

func selectRegistrations(o registration.LoadOptions) sq.SelectBuilder {
	q := psql.Select(registrationColumns...).From("registrations r")
	if o.IncludeUser {
		q = q.Columns(userColumns...).Join("users u ON u.id = r.user_id")
	}
	return q
}

// List returns registrations in registration order (created_at, id).
func (r *RegistrationsRepo) List(ctx context.Context, f registration.Filter, p registration.Paging, o registration.LoadOptions) ([]registration.Registration, error) {
	q := selectRegistrations(o)

	if f.EventID != "" {
		q = q.Where(sq.Eq{"r.event_id": f.EventID})
	}
	if f.ProductID != "" {
		q = q.Where(`EXISTS (
			SELECT 1 FROM registration_products rp
			WHERE rp.registration_id = r.id AND rp.product_id = ?)`, f.ProductID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where(sq.Eq{"r.status": statusStrings(f.Statuses)})
	}
	if f.VerifiedOnly {
		q = q.Where(sq.Eq{"r.status": statusStrings(registration.VerifiedStatuses())})
	}
	if len(f.Types) > 0 {
		types := make([]string, 0, len(f.Types))
		for _, t := range f.Types {
			types = append(types, string(t))
		}
		q = q.Where(sq.Eq{"r.type": types})
	}

	q = q.OrderBy("r.created_at ASC", "r.id ASC")
	if p.Limit > 0 {
		q = q.Limit(uint64(p.Limit))
	}
	if p.Offset > 0 {
		q = q.Offset(uint64(p.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build registrations query: %w", err)
	}

	var out []registration.Registration
	err = r.observe("registrations.list", func() error {
		rows, err := querier(ctx, r.db).Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]registration.Registration, 0, p.Limit)
		for rows.Next() {
			reg, err := scanRegistration(rows, o)
			if err != nil {
				return err
			}
			out = append(out, reg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RegistrationsRepo) GetByID(ctx context.Context, id string, o registration.LoadOptions) (registration.Registration, error) {
	sql, args, err := selectRegistrations(o).Where(sq.Eq{"r.id": id}).ToSql()
	if err != nil {
		return registration.Registration{}, fmt.Errorf("build registration query: %w", err)
	}

	var reg registration.Registration
	err = r.observe("registrations.get_by_id", func() error {
		var scanErr error
		reg, scanErr = scanRegistration(querier(ctx, r.db).QueryRow(ctx, sql, args...), o)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registration.Registration{}, registration.ErrNotFound
		}
		return registration.Registration{}, err
	}
	return reg, nil
}

func scanRegistration(row pgx.Row, o registration.LoadOptions) (registration.Registration, error) {
	var reg registration.Registration
	var status, typ string

	dest := []any{&reg.ID, &reg.EventID, &reg.UserID, &status, &typ, &reg.CreatedAt, &reg.UpdatedAt}

	var u user.User
	if o.IncludeUser {
		dest = append(dest, &u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.CreatedAt, &u.UpdatedAt)
	}

	if err := row.Scan(dest...); err != nil {
		return registration.Registration{}, err
	}

	reg.Status = registration.Status(status)
	reg.Type = registration.Type(typ)
	if o.IncludeUser {
		reg.User = &u
	}
	return reg, nil
}

func statusStrings(statuses []registration.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
