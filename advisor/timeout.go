package advisor

import (
	"context"
	"fmt"
	"time"
)

// Consult sends req to a and waits at most timeout for the answer.
// The advisor runs in its own goroutine so a slow or stuck implementation
// never holds the caller past the deadline. There are no retries.
func Consult(ctx context.Context, a Advisor, req Request, timeout time.Duration) ([]Suggestion, error) {
	return withDeadline(ctx, timeout, func(ctx context.Context) ([]Suggestion, error) {
		return a.Suggest(ctx, req)
	})
}

// ConsultUnroll is Consult for unroll factors.
func ConsultUnroll(ctx context.Context, a UnrollAdvisor, q UnrollQuery, timeout time.Duration) (UnrollAdvice, error) {
	return withDeadline(ctx, timeout, func(ctx context.Context) (UnrollAdvice, error) {
		return a.SuggestUnroll(ctx, q)
	})
}

func withDeadline[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w after %v: %v", ErrTimeout, timeout, ctx.Err())
	}
}
