// Package pagination streams large result sets page by page so callers never
// hold a full roster in memory.
package pagination

import (
	"context"
	"errors"
)

const DefaultPageSize = 100

var ErrExhausted = errors.New("pagination: no more pages")

// FetchFunc returns at most limit items starting at offset.
type FetchFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Reader walks a FetchFunc forward. A page shorter than the page size marks
// the end of the stream. Reader is not safe for concurrent use.
type Reader[T any] struct {
	fetch    FetchFunc[T]
	pageSize int
	offset   int
	done     bool
}

func NewReader[T any](fetch FetchFunc[T], pageSize int) *Reader[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Reader[T]{fetch: fetch, pageSize: pageSize}
}

func (r *Reader[T]) HasMore() bool {
	return !r.done
}

// ReadNext fetches the next page. It returns ErrExhausted once the end of
// the stream has been observed. On a fetch error the reader does not advance,
// so the same page can be retried.
func (r *Reader[T]) ReadNext(ctx context.Context) ([]T, error) {
	if r.done {
		return nil, ErrExhausted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := r.fetch(ctx, r.offset, r.pageSize)
	if err != nil {
		return nil, err
	}

	r.offset += r.pageSize
	if len(items) < r.pageSize {
		r.done = true
	}
	return items, nil
}

// Offset is the offset the next ReadNext will request.
func (r *Reader[T]) Offset() int {
	return r.offset
}
