package retry

import (
	"fmt"
	"sync"
	"time"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// BeforeRetryFunc is called once per retry, after the failure and before
// the pause. attempt is 1-based.
type BeforeRetryFunc func(attempt int, err error)

// Policy is the shared retry configuration read by every Executor that
// holds it. All accessors are safe for concurrent use. Each call takes one
// snapshot when it starts; later writes apply to later calls only.
type Policy struct {
	mu sync.RWMutex

	maxRetries   int
	waitTimes    []time.Duration
	fallbackWait time.Duration
	fuzz         bool
	fuzzFloor    time.Duration
	retryOn      txretry.KindSet
	beforeRetry  BeforeRetryFunc
}

// NewPolicy returns a policy with the defaults: 3 retries, the
// 0-1-2-4-8-16-32s schedule with a 32s fallback, fuzz enabled, no extra
// retryable kinds and no hook.
func NewPolicy() *Policy {
	return &Policy{
		maxRetries:   txretry.DefaultMaxRetries,
		waitTimes:    txretry.DefaultWaitTimes(),
		fallbackWait: txretry.DefaultFallbackWait,
		fuzz:         txretry.DefaultFuzz,
		fuzzFloor:    txretry.DefaultFuzzFloor,
		retryOn:      txretry.NewKindSet(),
	}
}

// MaxRetries returns the number of retries after the initial attempt.
func (p *Policy) MaxRetries() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxRetries
}

// SetMaxRetries sets the number of retries after the initial attempt.
func (p *Policy) SetMaxRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("max retries cannot be negative (got %d): %w", n, txretry.ErrInvalidConfig)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxRetries = n
	return nil
}

// WaitTimes returns a copy of the pause schedule.
func (p *Policy) WaitTimes() []time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]time.Duration(nil), p.waitTimes...)
}

// SetWaitTimes replaces the pause schedule. The slice is copied.
func (p *Policy) SetWaitTimes(waits []time.Duration) error {
	for i, w := range waits {
		if w < 0 {
			return fmt.Errorf("wait time %d is negative (%v): %w", i, w, txretry.ErrInvalidConfig)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitTimes = append([]time.Duration(nil), waits...)
	return nil
}

// FallbackWait returns the pause used past the end of the schedule.
func (p *Policy) FallbackWait() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallbackWait
}

// SetFallbackWait sets the pause used past the end of the schedule.
func (p *Policy) SetFallbackWait(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("fallback wait cannot be negative (%v): %w", d, txretry.ErrInvalidConfig)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbackWait = d
	return nil
}

// Fuzz reports whether pauses are jittered.
func (p *Policy) Fuzz() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fuzz
}

// SetFuzz enables or disables jitter.
func (p *Policy) SetFuzz(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fuzz = enabled
}

// FuzzFloor returns the minimum jitter bound.
func (p *Policy) FuzzFloor() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fuzzFloor
}

// SetFuzzFloor sets the minimum jitter bound.
func (p *Policy) SetFuzzFloor(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("fuzz floor cannot be negative (%v): %w", d, txretry.ErrInvalidConfig)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fuzzFloor = d
	return nil
}

// RetryOn returns the extra retryable kinds. The isolation conflict kind
// is always retryable and is not listed unless it was set explicitly.
func (p *Policy) RetryOn() []txretry.ErrorKind {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.retryOn.Slice()
}

// SetRetryOn replaces the extra retryable kinds.
func (p *Policy) SetRetryOn(kinds ...txretry.ErrorKind) {
	set := txretry.NewKindSet(kinds...)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryOn = set
}

// BeforeRetry returns the hook, or nil.
func (p *Policy) BeforeRetry() BeforeRetryFunc {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.beforeRetry
}

// SetBeforeRetry sets the hook. nil removes it.
func (p *Policy) SetBeforeRetry(fn BeforeRetryFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beforeRetry = fn
}

// policySnapshot is an immutable copy taken at the start of a call.
type policySnapshot struct {
	maxRetries   int
	waitTimes    []time.Duration
	fallbackWait time.Duration
	fuzz         bool
	fuzzFloor    time.Duration
	retryOn      txretry.KindSet
	beforeRetry  BeforeRetryFunc
}

func (p *Policy) snapshot() policySnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return policySnapshot{
		maxRetries:   p.maxRetries,
		waitTimes:    append([]time.Duration(nil), p.waitTimes...),
		fallbackWait: p.fallbackWait,
		fuzz:         p.fuzz,
		fuzzFloor:    p.fuzzFloor,
		retryOn:      p.retryOn.Union(),
		beforeRetry:  p.beforeRetry,
	}
}

func (s policySnapshot) backoff(jitterFunc func() float64) *Backoff {
	return NewBackoff(
		WithWaitTimes(s.waitTimes...),
		WithFallbackWait(s.fallbackWait),
		WithFuzz(s.fuzz),
		WithFuzzFloor(s.fuzzFloor),
		WithJitterFunc(jitterFunc),
	)
}
