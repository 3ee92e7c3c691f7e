package router

import "time"

// RetryPolicy bounds how many placement attempts are made on the selected
// venue and how long to back off between them. The delay doubles each
// attempt: delay = BaseDelay × 2^(attempt-1).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the production policy: 3 attempts starting
// at 1s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay returns the wait before re-attempting after the given 1-based
// attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}
