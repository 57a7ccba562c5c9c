package pagination

import (
	"context"
	"errors"
	"testing"
)

func sliceFetcher(items []int, calls *[]int) FetchFunc[int] {
	return func(_ context.Context, offset, limit int) ([]int, error) {
		*calls = append(*calls, offset)
		if offset >= len(items) {
			return nil, nil
		}
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		return items[offset:end], nil
	}
}

func TestReader_VisitsEveryItemOnce(t *testing.T) {
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}

	var calls []int
	r := NewReader(sliceFetcher(items, &calls), 100)

	var sizes []int
	var seen []int
	for r.HasMore() {
		page, err := r.ReadNext(context.Background())
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		sizes = append(sizes, len(page))
		seen = append(seen, page...)
	}

	if len(sizes) != 3 || sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Fatalf("got page sizes %v, want [100 100 50]", sizes)
	}
	if len(seen) != 250 {
		t.Fatalf("got %d items, want 250", len(seen))
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("item %d = %d, want ascending order", i, v)
		}
	}
	if len(calls) != 3 || calls[2] != 200 {
		t.Fatalf("got fetch offsets %v, want [0 100 200]", calls)
	}
}

func TestReader_ExactMultipleNeedsTrailingEmptyPage(t *testing.T) {
	items := make([]int, 200)
	var calls []int
	r := NewReader(sliceFetcher(items, &calls), 100)

	total := 0
	for r.HasMore() {
		page, err := r.ReadNext(context.Background())
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		total += len(page)
	}

	if total != 200 {
		t.Fatalf("got %d items, want 200", total)
	}
	if len(calls) != 3 {
		t.Fatalf("got %d fetches, want 3", len(calls))
	}
}

func TestReader_ExhaustedAndErrors(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	r := NewReader(func(_ context.Context, offset, limit int) ([]string, error) {
		if fail {
			return nil, boom
		}
		return []string{"a"}, nil
	}, 10)

	if _, err := r.ReadNext(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("offset advanced after failed fetch: %d", r.Offset())
	}

	fail = false
	page, err := r.ReadNext(context.Background())
	if err != nil || len(page) != 1 {
		t.Fatalf("got page=%v err=%v", page, err)
	}
	if r.HasMore() {
		t.Fatalf("expected reader to be done after short page")
	}
	if _, err := r.ReadNext(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
}

func TestReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	r := NewReader(func(_ context.Context, offset, limit int) ([]int, error) {
		called = true
		return nil, nil
	}, 5)

	if _, err := r.ReadNext(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if called {
		t.Fatalf("fetch must not run on a cancelled context")
	}
}
