package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearDelay(t *testing.T) {
	d := LinearDelay(5 * time.Second)
	assert.Equal(t, 5*time.Second, d(1))
	assert.Equal(t, 10*time.Second, d(2))
}

func TestWithRetry_SucceedsOnSecondAttempt(t *testing.T) {
	var delays []int
	policy := Policy{MaxAttempts: 2, Delay: func(a int) time.Duration {
		delays = append(delays, a)
		return time.Millisecond
	}}

	calls := 0
	res := WithRetry(context.Background(), policy, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt == 1 {
			return "", &ProviderError{Provider: "p", Kind: KindRateLimited}
		}
		return "done", nil
	})

	assert.True(t, res.OK())
	assert.Equal(t, "done", res.Value)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, KindNone, res.Kind)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, delays)
}

func TestWithRetry_ExhaustsAndKeepsLastKind(t *testing.T) {
	kinds := []Kind{KindTimeout, KindPayloadTooLarge}
	res := WithRetry(context.Background(), Policy{MaxAttempts: 2, Delay: LinearDelay(time.Millisecond)},
		func(_ context.Context, attempt int) (int, error) {
			return 0, &ProviderError{Provider: "p", Kind: kinds[attempt-1]}
		})

	assert.False(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, KindPayloadTooLarge, res.Kind, "every kind is retried; last one is reported")
}

func TestWithRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := WithRetry(ctx, Policy{MaxAttempts: 3, Delay: LinearDelay(time.Hour)},
		func(context.Context, int) (int, error) {
			calls++
			cancel()
			return 0, errors.New("boom")
		})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, KindUnknown, res.Kind)
}

func TestWithRetry_ZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	res := WithRetry(context.Background(), Policy{}, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("x")
	})
	assert.Equal(t, 1, calls)
	assert.False(t, res.OK())
}
