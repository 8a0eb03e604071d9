package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// fakeTx records the boundary lifecycle. Methods that are not overridden
// panic through the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	log       *[]string
	name      string
	commitErr error
	children  int
	closed    bool
}

func (tx *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	tx.children++
	child := &fakeTx{log: tx.log, name: fmt.Sprintf("%s/sp%d", tx.name, tx.children)}
	*tx.log = append(*tx.log, "savepoint "+child.name)
	return child, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	*tx.log = append(*tx.log, "commit "+tx.name)
	return tx.commitErr
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	*tx.log = append(*tx.log, "rollback "+tx.name)
	return nil
}

type fakeBeginner struct {
	log       []string
	opts      []pgx.TxOptions
	began     int
	beginErr  error
	commitErr []error
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	b.began++
	b.opts = append(b.opts, opts)
	tx := &fakeTx{log: &b.log, name: fmt.Sprintf("tx%d", b.began)}
	if len(b.commitErr) > 0 {
		tx.commitErr = b.commitErr[0]
		b.commitErr = b.commitErr[1:]
	}
	b.log = append(b.log, "begin "+tx.name)
	return tx, nil
}

func TestTransactor_Run_CommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)

	var seen pgx.Tx
	err := tr.Run(context.Background(), func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		assert.Equal(t, 1, tr.OpenBoundaries(ctx))
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, []string{"begin tx1", "commit tx1"}, b.log)
	assert.Equal(t, pgx.Serializable, b.opts[0].IsoLevel)
}

func TestTransactor_Run_RollsBackAndReturnsWorkError(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b, WithIsolation(pgx.RepeatableRead))
	want := &pgconn.PgError{Code: "40001"}

	err := tr.Run(context.Background(), func(ctx context.Context) error { return want })

	assert.Same(t, want, err)
	assert.Equal(t, []string{"begin tx1", "rollback tx1"}, b.log)
	assert.Equal(t, pgx.RepeatableRead, b.opts[0].IsoLevel)
}

func TestTransactor_Run_RollbackSignal(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)

	err := tr.Run(context.Background(), func(ctx context.Context) error {
		return fmt.Errorf("nothing to do: %w", txretry.ErrRollback)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"begin tx1", "rollback tx1"}, b.log)
}

func TestTransactor_Run_NestedUsesSavepoint(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)

	err := tr.Run(context.Background(), func(ctx context.Context) error {
		outer := TxFromContext(ctx)
		return tr.Run(ctx, func(ctx context.Context) error {
			assert.Equal(t, 2, tr.OpenBoundaries(ctx))
			assert.NotSame(t, outer, TxFromContext(ctx))
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, b.began)
	assert.Equal(t, []string{"begin tx1", "savepoint tx1/sp1", "commit tx1/sp1", "commit tx1"}, b.log)
}

func TestTransactor_Run_NestedRollbackKeepsOuter(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)

	err := tr.Run(context.Background(), func(ctx context.Context) error {
		_ = tr.Run(ctx, func(ctx context.Context) error { return txretry.ErrRollback })
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"begin tx1", "savepoint tx1/sp1", "rollback tx1/sp1", "commit tx1"}, b.log)
}

func TestTransactor_Run_CommitErrorReturnedAsIs(t *testing.T) {
	conflict := &pgconn.PgError{Code: "40001"}
	b := &fakeBeginner{commitErr: []error{conflict}}
	tr := NewTransactor(b)

	err := tr.Run(context.Background(), func(ctx context.Context) error { return nil })

	assert.Same(t, conflict, err)
}

func TestTransactor_Run_BeginError(t *testing.T) {
	b := &fakeBeginner{beginErr: errors.New("connection refused")}
	tr := NewTransactor(b)
	called := false

	err := tr.Run(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
	assert.False(t, called)
}

func TestTransactor_Run_PanicRollsBack(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)

	assert.PanicsWithValue(t, "boom", func() {
		_ = tr.Run(context.Background(), func(ctx context.Context) error { panic("boom") })
	})
	assert.Equal(t, []string{"begin tx1", "rollback tx1"}, b.log)
}

func TestTransactor_OpenBoundaries_OutsideRun(t *testing.T) {
	tr := NewTransactor(&fakeBeginner{})
	assert.Zero(t, tr.OpenBoundaries(context.Background()))
	assert.Nil(t, TxFromContext(context.Background()))
	assert.Nil(t, tr.Logger(context.Background()))
}

func TestTransactor_WithRetryExecutor_CommitConflictIsRetried(t *testing.T) {
	b := &fakeBeginner{commitErr: []error{&pgconn.PgError{Code: "40001"}}}
	tr := NewTransactor(b)
	executor := retry.NewExecutor(tr, nil, retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return nil }))

	runs := 0
	err := executor.RunWithRetry(context.Background(), func(ctx context.Context) error {
		runs++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.Equal(t, []string{"begin tx1", "commit tx1", "begin tx2", "commit tx2"}, b.log)
}

func TestTransactor_WithRetryExecutor_NestedConflictNotRetried(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)
	executor := retry.NewExecutor(tr, nil, retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return nil }))

	innerRuns := 0
	var innerErr error
	err := executor.RunWithRetry(context.Background(), func(ctx context.Context) error {
		innerErr = executor.RunWithRetry(ctx, func(ctx context.Context) error {
			innerRuns++
			return &pgconn.PgError{Code: "40P01"}
		})
		return nil
	})

	require.NoError(t, err)
	require.Error(t, innerErr)
	assert.Equal(t, 1, innerRuns)
	assert.Equal(t, []string{"begin tx1", "savepoint tx1/sp1", "rollback tx1/sp1", "commit tx1"}, b.log)
}

func TestParseIsoLevel(t *testing.T) {
	tests := []struct {
		in   string
		want pgx.TxIsoLevel
	}{
		{"", pgx.Serializable},
		{"serializable", pgx.Serializable},
		{"repeatable_read", pgx.RepeatableRead},
		{"Read Committed", pgx.ReadCommitted},
		{"read-uncommitted", pgx.ReadUncommitted},
	}
	for _, tt := range tests {
		got, err := ParseIsoLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseIsoLevel("snapshot")
	assert.ErrorIs(t, err, txretry.ErrInvalidConfig)
}
