package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Backoff computes the pause before a retry from a fixed wait schedule,
// optionally perturbed by jitter ("fuzz").
type Backoff struct {
	// waitTimes is indexed by retry number minus one
	waitTimes []time.Duration

	// fallback is used once the schedule is exhausted
	fallback time.Duration

	// fuzz enables jitter of +/- max(25% of the base, fuzzFloor)
	fuzz bool

	// fuzzFloor is the smallest jitter bound
	fuzzFloor time.Duration

	// jitterFunc provides random values [0, 1) (defaults to math/rand)
	jitterFunc func() float64
}

// BackoffOption is a functional option for configuring Backoff.
type BackoffOption func(*Backoff)

// WithWaitTimes sets the pause schedule. The slice is copied.
func WithWaitTimes(waits ...time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.waitTimes = append([]time.Duration(nil), waits...)
	}
}

// WithFallbackWait sets the pause used past the end of the schedule.
func WithFallbackWait(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.fallback = d
	}
}

// WithFuzz enables or disables jitter.
func WithFuzz(enabled bool) BackoffOption {
	return func(b *Backoff) {
		b.fuzz = enabled
	}
}

// WithFuzzFloor sets the minimum jitter bound.
func WithFuzzFloor(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.fuzzFloor = d
	}
}

// WithJitterFunc sets a custom function for generating random jitter values.
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *Backoff) {
		b.jitterFunc = f
	}
}

// NewBackoff creates a Backoff with the default schedule
// (0, 1, 2, 4, 8, 16, 32 seconds, then 32 seconds) and fuzz enabled.
func NewBackoff(opts ...BackoffOption) *Backoff {
	b := &Backoff{
		waitTimes: txretry.DefaultWaitTimes(),
		fallback:  txretry.DefaultFallbackWait,
		fuzz:      txretry.DefaultFuzz,
		fuzzFloor: txretry.DefaultFuzzFloor,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Base returns the un-jittered pause for a 1-based retry number.
func (b *Backoff) Base(attempt int) time.Duration {
	if attempt >= 1 && attempt <= len(b.waitTimes) {
		return b.waitTimes[attempt-1]
	}
	return b.fallback
}

// FuzzFactor returns the jitter bound applied around base.
func (b *Backoff) FuzzFactor(base time.Duration) time.Duration {
	f := base / 4
	if f < b.fuzzFloor {
		f = b.fuzzFloor
	}
	return f
}

// Delay returns the pause before retry number attempt (1-based).
// A jittered value at or below zero yields zero: no pause, never a negative one.
func (b *Backoff) Delay(attempt int) time.Duration {
	base := b.Base(attempt)
	if !b.fuzz {
		return base
	}

	jitterFunc := b.jitterFunc
	if jitterFunc == nil {
		jitterFunc = rand.Float64
	}

	// delta is uniform in [-f, +f)
	f := float64(b.FuzzFactor(base))
	delta := jitterFunc()*f*2 - f

	d := float64(base) + delta
	switch {
	case d <= 0:
		return 0
	case d >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// WaitTimes returns a copy of the schedule for tests and debugging.
func (b *Backoff) WaitTimes() []time.Duration {
	return append([]time.Duration(nil), b.waitTimes...)
}

// FallbackWait returns the fallback pause for tests and debugging.
func (b *Backoff) FallbackWait() time.Duration {
	return b.fallback
}

// Fuzz reports whether jitter is enabled.
func (b *Backoff) Fuzz() bool {
	return b.fuzz
}
