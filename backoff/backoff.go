// Package backoff provides retry delay strategies for warden's background
// loops: pub/sub resubscription, heartbeat visibility polling and the
// leader election start-up stagger. All strategies are stateless and safe
// for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// Exponential doubles the delay each attempt, capped at Max.
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
	return time.Duration(exponential(e.Initial, e.Max, attempt))
}

// ExponentialWithJitter applies full jitter to an exponential base: the
// delay is uniform in [0, min(Initial * 2^(attempt-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	return time.Duration(rand.Float64() * exponential(e.Initial, e.Max, attempt)) //nolint:gosec // jitter
}

func exponential(initial, maxDelay time.Duration, attempt int) float64 {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && base > float64(maxDelay) {
		base = float64(maxDelay)
	}
	return base
}

// Jitter returns a random duration in [0, upTo).
func Jitter(upTo time.Duration) time.Duration {
	if upTo <= 0 {
		return 0
	}
	return rand.N(upTo) //nolint:gosec // jitter
}

// DefaultStrategy is used for pub/sub resubscription: exponential with
// full jitter, 100ms initial and 30s max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(100*time.Millisecond, 30*time.Second)
}

// Poll calls cond up to attempts times, sleeping s.Delay(n) on clock
// between calls, until cond reports true. It returns false when attempts
// are exhausted and ctx.Err() when ctx ends first.
func Poll(ctx context.Context, clock clockwork.Clock, s Strategy, attempts int, cond func(context.Context) (bool, error)) (bool, error) {
	for n := 1; n <= attempts; n++ {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if n == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-clock.After(s.Delay(n)):
		}
	}
	return false, nil
}
