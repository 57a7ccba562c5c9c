package observability

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDB_ClassifiesErrors(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())
	const op = "external_accounts.create"

	_ = p.ObserveDB(op, func() error {
		return &pgconn.PgError{Code: "23505"}
	})
	_ = p.ObserveDB(op, func() error {
		return fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})
	})
	_ = p.ObserveDB(op, func() error { return context.DeadlineExceeded })
	_ = p.ObserveDB(op, func() error { return nil })

	cases := map[string]float64{
		"unique_violation":      1,
		"foreign_key_violation": 1,
		"timeout":               1,
	}
	for class, want := range cases {
		if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues(op, class)); got != want {
			t.Fatalf("%s count = %v, want %v", class, got, want)
		}
	}
}

func TestObserveDB_NoRowsIsNotAnError(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	err := p.ObserveDB("events.get_by_id", func() error { return pgx.ErrNoRows })
	if err != pgx.ErrNoRows {
		t.Fatalf("got %v, want ErrNoRows passed through", err)
	}
	if n := testutil.CollectAndCount(p.DbErrorsTotal); n != 0 {
		t.Fatalf("got %d error series, want 0", n)
	}
}

func TestDBErrorClass_UnknownCode(t *testing.T) {
	if got := DBErrorClass(&pgconn.PgError{Code: "XX000"}); got != "pg_XX000" {
		t.Fatalf("got %q", got)
	}
}

func TestObserveSyncOutcome(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.ObserveSyncOutcome("lms1", "synced")
	p.ObserveSyncOutcome("lms1", "synced")
	p.ObserveSyncOutcome("lms1", "check_failed")

	if got := testutil.ToFloat64(p.SyncOutcomes.WithLabelValues("lms1", "synced")); got != 2 {
		t.Fatalf("synced = %v, want 2", got)
	}
}
