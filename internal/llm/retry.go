package llm

import (
	"context"
	"time"
)

// Policy is a retry policy: how many attempts in total, and how long to
// wait after a failed attempt before the next one.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// LinearDelay waits attempt*base after the given attempt.
func LinearDelay(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * base }
}

// DefaultPolicy is two attempts with a linear delay.
func DefaultPolicy(base time.Duration) Policy {
	return Policy{MaxAttempts: 2, Delay: LinearDelay(base)}
}

// Result is the outcome of WithRetry: a Value, or the Kind and error of the
// last failed attempt.
type Result[T any] struct {
	Value    T
	Kind     Kind
	Err      error
	Attempts int
}

// OK reports whether an attempt succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// WithRetry calls fn until it succeeds or the policy's attempts are spent.
// Every failure kind is retried. Cancelling ctx during a wait ends the loop
// with the last failure.
func WithRetry[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) Result[T] {
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}

	var res Result[T]
	for attempt := 1; attempt <= limit; attempt++ {
		res.Attempts = attempt
		v, err := fn(ctx, attempt)
		if err == nil {
			return Result[T]{Value: v, Attempts: attempt}
		}
		res.Err, res.Kind = err, Classify(err)

		if attempt == limit || p.Delay == nil {
			continue
		}
		if d := p.Delay(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return res
			case <-t.C:
			}
		}
	}
	return res
}
