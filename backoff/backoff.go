// Package backoff computes retry delays and turns handler results into
// queue decisions. Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before the next attempt.
type Strategy interface {
	// Delay returns the wait after failed attempt n (1-indexed): Delay(1)
	// follows the first failure.
	Delay(attempt int) time.Duration
}

// maxShift keeps base<<shift inside int64 for any sane base.
const maxShift = 30

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay on every failed attempt:
// Base * 2^(attempt-1), capped at Max when Max > 0.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(exp2(e.Base, attempt), e.Max)
}

// ──────────────────────────────────────────────────
// Jittered
// ──────────────────────────────────────────────────

// Jittered draws a random delay in [d/2, d] where d is the exponential
// delay. Workers use it between retries of a failing store call so that a
// recovering backend is not hit by every worker at once.
type Jittered struct {
	Base time.Duration
	Max  time.Duration
}

// NewJittered creates a jittered exponential strategy.
func NewJittered(base, maxDelay time.Duration) *Jittered {
	return &Jittered{Base: base, Max: maxDelay}
}

// Delay returns a random duration in [d/2, d].
func (j *Jittered) Delay(attempt int) time.Duration {
	d := capped(exp2(j.Base, attempt), j.Max)
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1)) //nolint:gosec // jitter does not need crypto rand
}

func exp2(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}
	return base << shift
}

func capped(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

// DefaultStrategy returns the delay used for job retries: 2s doubling with
// no cap, giving 2s and 4s between the three default attempts.
func DefaultStrategy() Strategy {
	return NewExponential(2*time.Second, 0)
}
