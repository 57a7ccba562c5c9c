package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/product"
	"github.com/losol/eventuras-sub008/internal/observability"
)

type EventsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewEventsRepo(db DB, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{db: db, prom: prom}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	var e event.Event

	err := r.observe("events.get_by_id", func() error {
		return querier(ctx, r.db).QueryRow(ctx, `
		SELECT id, organization_id, title, city, start_at, created_at, updated_at
		FROM events
		WHERE id = $1
	`, id).Scan(&e.ID, &e.OrganizationID, &e.Title, &e.City, &e.StartAt, &e.CreatedAt, &e.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}
	return e, nil
}

type ProductsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewProductsRepo(db DB, prom *observability.Prom) *ProductsRepo {
	return &ProductsRepo{db: db, prom: prom}
}

func (r *ProductsRepo) GetByID(ctx context.Context, id string) (product.Product, error) {
	var p product.Product

	op := func() error {
		return querier(ctx, r.db).QueryRow(ctx, `
		SELECT id, event_id, name, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.EventID, &p.Name, &p.CreatedAt)
	}

	var err error
	if r.prom != nil {
		err = r.prom.ObserveDB("products.get_by_id", op)
	} else {
		err = op()
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.Product{}, product.ErrNotFound
		}
		return product.Product{}, err
	}
	return p, nil
}
