package backend

import (
	"context"
	"math/rand"
	"time"

	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// RetryPolicy controls exponential backoff for transient failures.
type RetryPolicy struct {
	MaxRetries int           // attempts beyond the first
	Base       time.Duration // first backoff delay
	Factor     float64       // multiplier per attempt
	Jitter     float64       // fraction of delay, applied as +/- jitter
	Max        time.Duration // delay ceiling, 0 = none
}

// DefaultRetryPolicy matches the platform retry contract: 3 retries, base 1s,
// factor 2, jitter +/-25%.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Base:       time.Second,
		Factor:     2,
		Jitter:     0.25,
		Max:        30 * time.Second,
	}
}

// Delay returns the backoff delay before retry attempt n (1-based), with
// jitter applied.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		// +/- jitter fraction
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// WithRetry invokes fn, retrying transient failures per the policy. Permanent
// failures return immediately. The last error is returned after exhaustion.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.Delay(attempt)
			logging.BackendDebug("retrying after %v (attempt %d/%d): %v",
				delay, attempt, policy.MaxRetries, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		te := types.AsTaskError(WrapError(err))
		if !te.Transient() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
