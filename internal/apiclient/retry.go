package apiclient

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig mirrors the Python RetryConfig's fields and defaults:
// 5 attempts, 2s initial backoff, 120s max, base 2, jitter enabled.
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultRetryConfig matches the original background_scheduler's
// retry_on_rate_limit defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialBackoff:  2 * time.Second,
		MaxBackoff:      120 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// backoffDelay computes delay(attempt) = min(max, initial*base^attempt),
// then applies up to +/-20% jitter, matching RetryConfig.get_backoff_delay.
func (c RetryConfig) backoffDelay(attempt int) time.Duration {
	delay := float64(c.InitialBackoff) * math.Pow(c.ExponentialBase, float64(attempt))
	if max := float64(c.MaxBackoff); delay > max {
		delay = max
	}
	if c.Jitter {
		jitter := delay * 0.2
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
