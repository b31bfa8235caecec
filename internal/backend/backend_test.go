package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordloom/internal/types"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "socket closed" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"nil", nil, ""},
		{"context deadline", context.DeadlineExceeded, types.ErrKindDeadlineExceeded},
		{"net timeout", fakeNetError{timeout: true}, types.ErrKindDeadlineExceeded},
		{"net failure", fakeNetError{}, types.ErrKindNetwork},
		{"rate limit", errors.New("429 rate limit exceeded"), types.ErrKindRateLimit},
		{"quota", errors.New("RESOURCE_EXHAUSTED: quota"), types.ErrKindRateLimit},
		{"permission", errors.New("403 permission denied"), types.ErrKindPermissionDenied},
		{"invalid", errors.New("400 invalid argument"), types.ErrKindInvalidInput},
		{"connection", errors.New("connection refused"), types.ErrKindNetwork},
		{"unknown", errors.New("something odd"), types.ErrKindBackendFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapErrorTransience(t *testing.T) {
	assert.Nil(t, WrapError(nil))

	transient := WrapError(errors.New("429 rate limit exceeded"))
	require.NotNil(t, transient)
	assert.True(t, transient.Transient())

	permanent := WrapError(errors.New("403 permission denied"))
	require.NotNil(t, permanent)
	assert.False(t, permanent.Transient())
}

func TestRetryPolicyDelayBounds(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Base: time.Second, Factor: 2, Jitter: 0.25, Max: 30 * time.Second}

	for attempt := 1; attempt <= 5; attempt++ {
		nominal := float64(time.Second)
		for i := 1; i < attempt; i++ {
			nominal *= 2
		}
		if nominal > float64(30*time.Second) {
			nominal = float64(30 * time.Second)
		}
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, float64(d), nominal*0.75, "attempt %d", attempt)
		assert.LessOrEqual(t, float64(d), nominal*1.25, "attempt %d", attempt)
	}
}

func TestRetryPolicyDelayNoJitterIsExact(t *testing.T) {
	p := RetryPolicy{Base: 10 * time.Millisecond, Factor: 2}
	assert.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	assert.Equal(t, 40*time.Millisecond, p.Delay(3))
}

func TestWithRetryTransientThenSuccess(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Base: time.Millisecond, Factor: 2}
	calls := 0
	err := WithRetry(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("429 rate limit exceeded")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryPermanentFailsFast(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Base: time.Millisecond, Factor: 2}
	calls := 0
	err := WithRetry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errors.New("403 permission denied")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAndReturnsLast(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, Base: time.Millisecond, Factor: 2}
	calls := 0
	sentinel := errors.New("connection refused")
	err := WithRetry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls) // first try plus two retries
}

func TestWithRetryHonorsContext(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Base: time.Hour, Factor: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := WithRetry(ctx, p, func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucketBurstThenRefill(t *testing.T) {
	b := newTokenBucket(100, 2)

	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	require.NoError(t, b.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond) // burst is immediate

	// Third token needs a refill at 100/s, roughly 10ms.
	require.NoError(t, b.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestTokenBucketCancelledWait(t *testing.T) {
	b := newTokenBucket(0.001, 1)
	require.NoError(t, b.Wait(context.Background())) // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
}
