package cache

import (
	"context"
	"time"

	"github.com/losol/eventuras-sub008/internal/domain/event"
)

type EventSource interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

// Events memoizes event lookups for the admin API, which checks that an event
// exists on nearly every request. Misses and errors are never cached.
type Events struct {
	src EventSource
	c   *Cache
}

func NewEvents(src EventSource, ttl time.Duration) *Events {
	return &Events{src: src, c: New(ttl)}
}

func (e *Events) GetByID(ctx context.Context, id string) (event.Event, error) {
	if v, ok := e.c.Get(id); ok {
		return v.(event.Event), nil
	}

	ev, err := e.src.GetByID(ctx, id)
	if err != nil {
		return event.Event{}, err
	}
	e.c.Set(id, ev)
	return ev, nil
}
