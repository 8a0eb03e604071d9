package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txretry/internal/db"
	"github.com/vvka-141/txretry/internal/logging"
	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// scriptedTx returns the queued Exec results in order, then succeeds.
// A nil entry is a successful statement.
type scriptedTx struct {
	pgx.Tx
	owner *scriptedBeginner
}

func (tx *scriptedTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	b := tx.owner
	b.executed = append(b.executed, sql)
	if len(b.failures) > 0 {
		err := b.failures[0]
		b.failures = b.failures[1:]
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (tx *scriptedTx) Commit(ctx context.Context) error {
	tx.owner.commits++
	return nil
}

func (tx *scriptedTx) Rollback(ctx context.Context) error {
	tx.owner.rollbacks++
	return nil
}

type scriptedBeginner struct {
	failures  []error
	executed  []string
	commits   int
	rollbacks int
}

func (b *scriptedBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return &scriptedTx{owner: b}, nil
}

func newScriptExecutor(b *scriptedBeginner, maxRetries int, logger txretry.Logger) *retry.Executor {
	policy := retry.NewPolicy()
	_ = policy.SetMaxRetries(maxRetries)
	noSleep := retry.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil })
	return retry.NewExecutor(db.NewTransactor(b, db.WithLogger(logger)), policy, noSleep)
}

func TestRunScripts_RetriesWholeUnitOnConflict(t *testing.T) {
	// a.sql succeeds, b.sql conflicts, then both succeed on the second attempt.
	b := &scriptedBeginner{failures: []error{nil, &pgconn.PgError{Code: "40001"}}}
	var out bytes.Buffer
	logger := logging.NewConsoleLoggerTo(&out, false)

	scripts := []script{{path: "a.sql", sql: "A"}, {path: "b.sql", sql: "B"}}
	attempts, err := runScripts(context.Background(), newScriptExecutor(b, 3, logger), scripts, logger)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []string{"A", "B", "A", "B"}, b.executed)
	assert.Equal(t, 1, b.rollbacks)
	assert.Equal(t, 1, b.commits)
	assert.Contains(t, out.String(), "[WARN] isolation_conflict detected (SQLSTATE 40001). Retry num 1...")
}

func TestRunScripts_ExhaustedConflictMapsToConflictExit(t *testing.T) {
	conflict := &pgconn.PgError{Code: "40P01"}
	b := &scriptedBeginner{failures: []error{conflict, conflict}}

	attempts, err := runScripts(context.Background(), newScriptExecutor(b, 1, nil),
		[]script{{path: "a.sql", sql: "A"}}, logging.NewNullLogger())

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, b.executed, 2)

	wrapped := errors.Join(txretry.ErrExecutionFailed, err)
	assert.Equal(t, txretry.ExitConflict, txretry.ExitCodeForError(wrapped))
	assert.Contains(t, err.Error(), "a.sql")
}

func TestRunScripts_SyntaxErrorNotRetried(t *testing.T) {
	b := &scriptedBeginner{failures: []error{&pgconn.PgError{Code: "42601", Message: "syntax error"}}}

	attempts, err := runScripts(context.Background(), newScriptExecutor(b, 3, nil),
		[]script{{path: "bad.sql", sql: "SELEC 1"}}, logging.NewNullLogger())

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, b.rollbacks)
	assert.Equal(t, txretry.ExitExecutionFailed, txretry.ExitCodeForError(err))
}

func TestRunScripts_KeepsPolicyHook(t *testing.T) {
	b := &scriptedBeginner{failures: []error{&pgconn.PgError{Code: "40001"}}}
	executor := newScriptExecutor(b, 3, nil)
	var seen []int
	executor.Policy().SetBeforeRetry(func(attempt int, err error) { seen = append(seen, attempt) })

	_, err := runScripts(context.Background(), executor, []script{{path: "a.sql", sql: "A"}}, logging.NewNullLogger())

	require.NoError(t, err)
	assert.Equal(t, []int{1}, seen)
}

func TestRunScripts_InterruptedPauseIsNotExhaustion(t *testing.T) {
	b := &scriptedBeginner{failures: []error{&pgconn.PgError{Code: "40001"}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := retry.NewPolicy()
	require.NoError(t, policy.SetMaxRetries(3))
	interrupt := retry.WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	executor := retry.NewExecutor(db.NewTransactor(b), policy, interrupt)

	attempts, err := runScripts(ctx, executor, []script{{path: "a.sql", sql: "A"}}, logging.NewNullLogger())

	require.Error(t, err)
	assert.Equal(t, 2, attempts, "hook ran for retry 1 before the pause")
	assert.Len(t, b.executed, 1)
	assert.ErrorIs(t, err, context.Canceled)

	wrapped := fmt.Errorf("%w: %w", txretry.ErrExecutionFailed, err)
	assert.Equal(t, txretry.ExitInterrupted, txretry.ExitCodeForError(wrapped))
}
