// Package deadline bounds blocking calls to collaborators that may hang.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a bounded call did not finish in time.
var ErrTimeout = errors.New("deadline exceeded")

type result[T any] struct {
	value T
	err   error
}

// Call runs fn with a context limited to timeout. If fn has not returned when
// the timeout fires, Call returns ErrTimeout immediately and the eventual
// result of fn is discarded. Cancellation of the parent context is reported
// as the parent's error. A panic in fn is returned as an error.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(callCtx)
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return r.value, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, r.err)
		}
		return r.value, r.err
	case <-callCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// Do is Call for functions that only return an error.
func Do(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := Call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
