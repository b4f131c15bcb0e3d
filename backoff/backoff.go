// Package backoff provides pluggable delay strategies for retrying
// failed server calls. The worker uses one to pace its fetch loop after
// errors; retry scheduling for failed jobs belongs to the server and is
// not computed here. All strategies are safe for concurrent use (they
// are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Linear increases the delay linearly with the attempt number.
// Delay = min(Initial * attempt, Max); a Max of zero means uncapped.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := l.Initial * time.Duration(attempt)
	return capped(d, l.Max)
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max); a Max of zero means uncapped.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return doubled(e.Initial, e.Max, attempt)
}

// ExponentialWithJitter spreads an exponential base over [0, base).
// A fleet of workers backing off from the same outage then retries at
// uncorrelated times instead of in lockstep.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)).
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := doubled(e.Initial, e.Max, attempt)
	if base <= 0 {
		return 0
	}

	return rand.N(base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// DefaultStrategy returns the default used for fetch-loop pacing:
// ExponentialWithJitter with 1s initial and 30s max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 30*time.Second)
}

// doubled computes initial * 2^(attempt-1) with overflow protection,
// capped at max when max is positive.
func doubled(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := initial
	for i := 1; i < attempt; i++ {
		next := d * 2
		if next < d {
			d = math.MaxInt64
			break
		}
		d = next
		if maxDelay > 0 && d >= maxDelay {
			break
		}
	}

	return capped(d, maxDelay)
}

// capped bounds d to max when max is positive.
func capped(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}

	return d
}
