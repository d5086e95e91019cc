package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures backoff behavior for provider calls.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// BackoffMultiplier controls exponential growth between attempts.
	BackoffMultiplier float64
	// Jitter randomizes the delay to avoid thundering herds.
	Jitter bool
	// OnRetry, when set, is invoked before each retry with the error, the
	// zero-indexed attempt, and the delay about to be applied.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy allows three attempts total: one initial call plus
// two retries, 1s base delay doubling up to 30s, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// CalculateDelay computes the backoff for a given attempt, capped at
// MaxDelay. With jitter enabled the result is uniform in [0, backoff].
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	delay := time.Duration(d)
	if p.Jitter && delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay
}

// ShouldRetry reports whether another attempt is allowed for this error.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return false
}

// Retry runs fn under the policy. A RetryAfter hint on the error raises
// the computed delay. The context cancels waiting between attempts.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !policy.ShouldRetry(lastErr, attempt) {
			return lastErr
		}

		delay := policy.CalculateDelay(attempt)
		if hint := retryAfterHint(lastErr); hint > delay {
			delay = hint
		}
		if policy.OnRetry != nil {
			policy.OnRetry(lastErr, attempt, delay)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
}

func retryAfterHint(err error) time.Duration {
	var pe *ProviderError
	switch e := err.(type) {
	case *RateLimitError:
		pe = &e.ProviderError
	case *ServerError:
		pe = &e.ProviderError
	case *ProviderError:
		pe = e
	default:
		return 0
	}
	if pe.RetryAfter == nil {
		return 0
	}
	return time.Duration(*pe.RetryAfter * float64(time.Second))
}
