// Package retry provides the exponential backoff policy applied to
// retryable delivery failures.
package retry

import (
	"math"
	"time"
)

// Strategy defines the retry behavior for failed delivery attempts.
//
// The redelivery delay after attempt N is:
//
//	delay = min(BaseDelay * ExponentialBase^(N-1), MaxDelay)
//
// With BaseDelay=1s and ExponentialBase=2, attempts 1, 2, 3 yield delays of
// 1s, 2s, 4s.
type Strategy struct {
	MaxAttempts     int           // Maximum delivery attempts before forcing failure
	BaseDelay       time.Duration // Delay after the first failed attempt
	MaxDelay        time.Duration // Delay cap
	ExponentialBase float64       // Backoff multiplier (2.0 doubles each attempt)
}

// DefaultStrategy returns the production default: 5 attempts, 30s base
// delay doubling up to 30m.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        30 * time.Minute,
		ExponentialBase: 2.0,
	}
}

// Delay returns the redelivery delay after the given 1-based attempt.
func (s Strategy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attempt-1))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// CanRetry reports whether another delivery attempt is allowed after the
// given number of attempts.
func (s Strategy) CanRetry(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}
