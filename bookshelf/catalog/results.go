package catalog

import (
	"context"
	"errors"
	"time"
)

// Results is a lazy typed view over a Cursor. It must be consumed with All or
// Each, or released with Close.
type Results[T any] struct {
	cursor  Cursor
	op      string
	timeout time.Duration
}

var errStopIteration = errors.New("stop iteration")

func newResults[T any](cursor Cursor, op string, timeout time.Duration) *Results[T] {
	return &Results[T]{cursor: cursor, op: op, timeout: timeout}
}

// All drains the cursor into a slice and closes it. An empty result is a
// non-nil empty slice.
func (r *Results[T]) All(ctx context.Context) ([]T, error) {
	items := make([]T, 0)

	err := r.Each(ctx, func(item T) error {
		items = append(items, item)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Each decodes documents one at a time and calls fn for each. Iteration stops
// at the first error from fn, which is returned as is. The cursor is always
// closed.
func (r *Results[T]) Each(ctx context.Context, fn func(T) error) (err error) {
	if r == nil || r.cursor == nil {
		return nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		closeErr := r.cursor.Close(ctx)
		if err == nil && closeErr != nil {
			err = NewError(KindQueryExecution, r.op, closeErr)
		}
	}()

	for r.cursor.Next(ctx) {
		var item T
		if decodeErr := r.cursor.Decode(&item); decodeErr != nil {
			return NewError(KindQueryExecution, r.op, decodeErr)
		}

		if fnErr := fn(item); fnErr != nil {
			return fnErr
		}
	}

	if cursorErr := r.cursor.Err(); cursorErr != nil {
		return NewError(KindQueryExecution, r.op, cursorErr)
	}

	return nil
}

// First returns the first document and closes the cursor. found is false when
// the result is empty.
func (r *Results[T]) First(ctx context.Context) (item T, found bool, err error) {
	err = r.Each(ctx, func(v T) error {
		item, found = v, true

		return errStopIteration
	})
	if errors.Is(err, errStopIteration) {
		err = nil
	}

	return item, found, err
}

// Close releases the cursor without reading it.
func (r *Results[T]) Close(ctx context.Context) error {
	if r == nil || r.cursor == nil {
		return nil
	}

	return r.cursor.Close(ctx)
}
