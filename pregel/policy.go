package pregel

import "time"

// RetryPolicy controls how failed vertex computations are retried.
//
// Delays grow exponentially from BackoffBase and are capped at BackoffMax.
// A vertex's retry count persists across supersteps and resets on the first
// successful computation.
type RetryPolicy struct {
	// MaxRetries is the number of retries allowed after the initial
	// attempt. Zero disables retries.
	MaxRetries int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMax caps the delay between retries.
	BackoffMax time.Duration
}

// DefaultRetryPolicy returns the standard policy: 3 retries, 100ms base,
// 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  10 * time.Second,
	}
}

// NoRetry returns a policy that fails on the first error.
func NoRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = 0
	return p
}

// DelayForAttempt computes the backoff delay for a zero-based retry attempt:
// BackoffBase * 2^attempt, capped at BackoffMax.
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BackoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.BackoffMax || delay < 0 {
			return p.BackoffMax
		}
	}
	if delay > p.BackoffMax {
		return p.BackoffMax
	}
	return delay
}

// ShouldRetry reports whether another retry is allowed given the number of
// retries already consumed. MaxRetries of N permits N retries on top of the
// initial attempt, so a vertex may run up to N+1 times.
func (p RetryPolicy) ShouldRetry(retries int) bool {
	return retries < p.MaxRetries
}
