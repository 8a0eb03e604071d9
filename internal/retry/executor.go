package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Executor runs units of work through a TransactionPrimitive and reruns
// them after retryable failures.
//
// Thread Safety:
// Execute paths share nothing but the Policy, which is read once per call.
// Any number of goroutines may call RunWithRetry concurrently, each with its
// own attempt counter and transaction.
type Executor struct {
	primitive  txretry.TransactionPrimitive
	classifier txretry.ErrorClassifier
	policy     *Policy
	sleep      func(ctx context.Context, d time.Duration) error
	jitterFunc func() float64
}

// ExecutorOption is a functional option for configuring Executor.
type ExecutorOption func(*Executor)

// WithClassifier replaces the PostgreSQL classifier.
func WithClassifier(c txretry.ErrorClassifier) ExecutorOption {
	return func(e *Executor) {
		e.classifier = c
	}
}

// WithSleeper replaces the context-aware timer used for pauses.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// WithJitterSource sets the random source for fuzz, values in [0, 1).
func WithJitterSource(f func() float64) ExecutorOption {
	return func(e *Executor) {
		e.jitterFunc = f
	}
}

// NewExecutor creates an executor over primitive. A nil policy means a
// private policy with default values.
// Panics if primitive is nil.
func NewExecutor(primitive txretry.TransactionPrimitive, policy *Policy, opts ...ExecutorOption) *Executor {
	if primitive == nil {
		panic("primitive cannot be nil")
	}
	if policy == nil {
		policy = NewPolicy()
	}

	e := &Executor{
		primitive:  primitive,
		classifier: NewPostgreSQLErrorClassifier(),
		policy:     policy,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the policy the executor reads on every call.
func (e *Executor) Policy() *Policy {
	return e.policy
}

// callOverrides hold per-call values that win over the policy.
type callOverrides struct {
	maxRetries  *int
	retryOn     txretry.KindSet
	beforeRetry BeforeRetryFunc
}

// CallOption overrides the policy for a single call.
type CallOption func(*callOverrides)

// WithMaxRetries overrides the policy's retry budget. Negative values
// are treated as zero.
func WithMaxRetries(n int) CallOption {
	return func(o *callOverrides) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = &n
	}
}

// WithRetryOn adds retryable kinds on top of the policy's.
func WithRetryOn(kinds ...txretry.ErrorKind) CallOption {
	return func(o *callOverrides) {
		o.retryOn = o.retryOn.Union(txretry.NewKindSet(kinds...))
	}
}

// WithBeforeRetry replaces the policy's hook.
func WithBeforeRetry(fn BeforeRetryFunc) CallOption {
	return func(o *callOverrides) {
		o.beforeRetry = fn
	}
}

// RunWithRetry runs work inside a transactional boundary and reruns the
// whole unit after a retryable failure. work must be safe to re-execute.
//
// The returned error is the last failure itself, never a wrapper, except
// when ctx is cancelled during a pause: then the error wraps both ctx.Err()
// and the last failure.
func (e *Executor) RunWithRetry(ctx context.Context, work func(ctx context.Context) error, opts ...CallOption) error {
	var o callOverrides
	for _, opt := range opts {
		opt(&o)
	}

	snap := e.policy.snapshot()

	maxRetries := snap.maxRetries
	if o.maxRetries != nil {
		maxRetries = *o.maxRetries
	}
	retryable := snap.retryOn.Union(o.retryOn, txretry.NewKindSet(txretry.KindIsolationConflict))
	hook := snap.beforeRetry
	if o.beforeRetry != nil {
		hook = o.beforeRetry
	}
	backoff := snap.backoff(e.jitterFunc)

	// Only the outermost boundary may retry: an enclosing transaction is
	// already aborted and must be rerun by its own owner.
	nested := e.primitive.OpenBoundaries(ctx) > 0

	attempt := 0
	for {
		err := e.primitive.Run(ctx, work)
		if err == nil {
			return nil
		}

		kind := e.classifier.Classify(err)
		if !retryable.Has(kind) {
			return err
		}
		if nested {
			e.verbose(ctx, "%s inside a nested transaction, not retrying", kind)
			return err
		}
		if attempt >= maxRetries {
			return err
		}

		attempt++
		if logger := e.primitive.Logger(ctx); logger != nil {
			logger.Warn("%s detected (%s). Retry num %d...", kind, describeFailure(err), attempt)
		}
		if hook != nil {
			hook(attempt, err)
		}

		if serr := e.sleep(ctx, backoff.Delay(attempt)); serr != nil {
			return fmt.Errorf("retry %d interrupted: %w: %w", attempt, serr, err)
		}
	}
}

// Run is RunWithRetry for work that produces a value. The value of the
// successful attempt is returned; on failure the zero value is.
func Run[T any](ctx context.Context, e *Executor, work func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	var result T
	err := e.RunWithRetry(ctx, func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// describeFailure names the concrete error behind a kind, so a deadlock and a
// serialization failure are told apart in the retry warning.
func describeFailure(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "SQLSTATE " + pgErr.Code
	}
	return err.Error()
}

func (e *Executor) verbose(ctx context.Context, format string, args ...interface{}) {
	if logger := e.primitive.Logger(ctx); logger != nil {
		logger.Verbose(format, args...)
	}
}

// sleepContext waits for d, returning early with ctx.Err() on cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
