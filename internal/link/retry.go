package link

import "time"

// RetryPolicy computes reconnection backoff from an attempt counter.
// Delays double from BaseDelay per attempt. Past MaxAttempts the link is
// unrecoverable and the supervisor escalates instead of retrying.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy returns the standard backoff schedule: one second
// doubling per attempt, twenty attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Second, MaxAttempts: 20}
}

// NextDelay returns the wait before the given retry attempt. Attempts are
// 1-indexed, so the first retry waits BaseDelay and each attempt after
// doubles it.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// HasAttemptsRemaining reports whether attempt is within the ceiling.
func (p RetryPolicy) HasAttemptsRemaining(attempt int) bool {
	return attempt <= p.MaxAttempts
}
