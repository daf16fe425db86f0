package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy holds the numeric retry parameters. Presets only differ in these
// values; the delay and classification rules are shared.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
	MaxAttempts  int
	RetryUnknown bool
}

// Aggressive retries fast and often; for cheap idempotent calls.
func Aggressive() Policy {
	return Policy{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   1.5,
		JitterFactor: 0.2,
		MaxAttempts:  8,
		RetryUnknown: true,
	}
}

// Standard is the default for external service calls.
func Standard() Policy {
	return Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
		MaxAttempts:  5,
		RetryUnknown: true,
	}
}

// Conservative spaces retries out; for rate-limited upstreams.
func Conservative() Policy {
	return Policy{
		InitialDelay: 5 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2,
		JitterFactor: 0.3,
		MaxAttempts:  4,
		RetryUnknown: false,
	}
}

// FailFast gives one retry and gives up; for user-facing request paths.
func FailFast() Policy {
	return Policy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		JitterFactor: 0,
		MaxAttempts:  2,
		RetryUnknown: false,
	}
}

// NextDelay computes the delay before the given attempt (1-based):
// min(maxDelay, initialDelay * multiplier^(attempt-1)), with jitter of
// ±delay*jitterFactor applied afterwards and floored at zero.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if limit := float64(p.MaxDelay); delay > limit {
		delay = limit
	}
	if p.JitterFactor > 0 {
		delay += delay * p.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed for this error.
// Permanent failures are never retried.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	switch Classify(err) {
	case ClassTransient:
		return true
	case ClassUnknown:
		return p.RetryUnknown
	default:
		return false
	}
}

// Do runs fn with retries under the policy. It returns the last error when
// attempts are exhausted or a permanent failure is hit, and stops early when
// the context is cancelled.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.NextDelay(attempt)):
		}
	}
}
