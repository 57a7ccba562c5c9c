package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/job"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/utils"
)

func TestAccountsRepo_UniqueKeys(t *testing.T) {
	ctx := context.Background()
	r := NewAccountsRepo()
	regID := "reg-1"

	tests := []struct {
		name    string
		acc     external.Account
		wantErr error
	}{
		{"first user account", external.NewAccount("moodle", "m-1", "u-1", nil), nil},
		{"same user again", external.NewAccount("moodle", "m-2", "u-1", nil), external.ErrConflict},
		{"same external id", external.NewAccount("moodle", "m-1", "u-2", nil), external.ErrConflict},
		{"other service", external.NewAccount("zoom", "m-1", "u-1", nil), nil},
		{"per registration", external.NewAccount("zoom", "z-9", "u-1", &regID), nil},
		{"registration again", external.NewAccount("zoom", "z-10", "u-1", &regID), external.ErrConflict},
	}

	for _, tt := range tests {
		err := r.Create(ctx, tt.acc)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
		}
	}

	if got := len(r.All()); got != 3 {
		t.Fatalf("stored %d accounts, want 3", got)
	}
}

func TestAccountsRepo_ConcurrentCreateKeepsOne(t *testing.T) {
	ctx := context.Background()
	r := NewAccountsRepo()

	var wg sync.WaitGroup
	var mu sync.Mutex
	conflicts := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Create(ctx, external.NewAccount("moodle", "ext-1", "u-1", nil))
			if errors.Is(err, external.ErrConflict) {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(r.All()) != 1 || conflicts != 15 {
		t.Fatalf("accounts=%d conflicts=%d", len(r.All()), conflicts)
	}
}

func TestExternalEventsRepo(t *testing.T) {
	ctx := context.Background()
	r := NewExternalEventsRepo()

	first := external.NewEvent("ev-1", "moodle", "course-1")
	if err := r.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := r.Create(ctx, external.NewEvent("ev-2", "moodle", "course-1")); !errors.Is(err, external.ErrDuplicateEvent) {
		t.Fatalf("err = %v, want duplicate", err)
	}

	got, err := r.FindForEvent(ctx, "ev-1", "moodle")
	if err != nil || got.ID != first.ID {
		t.Fatalf("FindForEvent = %+v, %v", got, err)
	}

	if err := r.Create(ctx, external.NewEvent("ev-1", "moodle", "course-2")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.FindForEvent(ctx, "ev-1", "moodle"); !errors.Is(err, external.ErrDuplicateEvent) {
		t.Fatalf("two mappings: err = %v", err)
	}

	if err := r.Delete(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, first.ID); !errors.Is(err, external.ErrEventNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestNotificationsRepo_ListCursor(t *testing.T) {
	ctx := context.Background()
	r := NewNotificationsRepo()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, 5)
	for i := range ids {
		n := notification.New(notification.KindEmail, "s", "b")
		n.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		ids[i] = n.ID
		if err := r.Create(ctx, n, nil); err != nil {
			t.Fatal(err)
		}
	}

	var seen []string
	after := utils.Start()
	for page := 0; ; page++ {
		items, next, hasMore, err := r.ListCursor(ctx, notification.ListFilter{}, 2, after)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range items {
			seen = append(seen, n.ID)
		}
		if !hasMore {
			break
		}
		if after, err = utils.DecodeCursor(*next); err != nil {
			t.Fatal(err)
		}
		if page > 5 {
			t.Fatal("pagination did not terminate")
		}
	}

	if len(seen) != 5 {
		t.Fatalf("saw %d notifications, want 5", len(seen))
	}
	for i, id := range seen {
		if id != ids[len(ids)-1-i] {
			t.Fatalf("position %d = %s, want newest first", i, id)
		}
	}

	sent := notification.StatusSent
	items, _, _, err := r.ListCursor(ctx, notification.ListFilter{Status: &sent}, 10, utils.Start())
	if err != nil || len(items) != 0 {
		t.Fatalf("status filter: %d items, err %v", len(items), err)
	}
}

func TestJobsRepo_IdempotentCreate(t *testing.T) {
	ctx := context.Background()
	r := NewJobsRepo()
	key := "sync_event:ev-1"

	a, err := r.Create(ctx, job.CreateRequest{Type: "sync_event", IdempotencyKey: &key})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Create(ctx, job.CreateRequest{Type: "sync_event", IdempotencyKey: &key})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID || len(r.All()) != 1 {
		t.Fatalf("duplicate active job created: %s vs %s", a.ID, b.ID)
	}

	if err := r.MarkDone(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	c, err := r.Create(ctx, job.CreateRequest{Type: "sync_event", IdempotencyKey: &key})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == a.ID {
		t.Fatal("finished job must not block a new one")
	}
}
