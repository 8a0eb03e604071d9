package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Beginner starts top-level transactions. *pgxpool.Pool, *pgx.Conn and
// *pgxpool.Conn all satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type txKey struct{}

// txState is the boundary carried by the context of a running unit of work.
type txState struct {
	tx    pgx.Tx
	depth int
}

// Transactor implements txretry.TransactionPrimitive on top of pgx.
//
// Thread-Safety: Safe for concurrent use when the Beginner is (pgxpool.Pool
// is). Nested boundaries belong to the goroutine whose context carries them.
type Transactor struct {
	beginner Beginner
	isoLevel pgx.TxIsoLevel
	logger   txretry.Logger
}

// TransactorOption is a functional option for configuring Transactor.
type TransactorOption func(*Transactor)

// WithIsolation sets the isolation level of outermost transactions.
func WithIsolation(level pgx.TxIsoLevel) TransactorOption {
	return func(t *Transactor) {
		t.isoLevel = level
	}
}

// WithLogger sets the logger handed to the retry executor.
func WithLogger(logger txretry.Logger) TransactorOption {
	return func(t *Transactor) {
		t.logger = logger
	}
}

// NewTransactor creates a Transactor over beginner. Outermost transactions
// default to SERIALIZABLE.
// Panics if beginner is nil.
func NewTransactor(beginner Beginner, opts ...TransactorOption) *Transactor {
	if beginner == nil {
		panic("beginner cannot be nil")
	}
	t := &Transactor{
		beginner: beginner,
		isoLevel: pgx.Serializable,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run executes work inside a transaction, or inside a savepoint when ctx
// already carries one. The boundary commits when work returns nil and rolls
// back otherwise; txretry.ErrRollback rolls back and yields nil.
// Errors from work and from COMMIT are returned as-is.
func (t *Transactor) Run(ctx context.Context, work func(ctx context.Context) error) (err error) {
	parent, _ := ctx.Value(txKey{}).(*txState)

	var tx pgx.Tx
	depth := 1
	if parent == nil {
		tx, err = t.beginner.BeginTx(ctx, pgx.TxOptions{IsoLevel: t.isoLevel})
	} else {
		tx, err = parent.tx.Begin(ctx)
		depth = parent.depth + 1
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			t.rollback(ctx, tx, depth)
			panic(p)
		}
	}()

	werr := work(context.WithValue(ctx, txKey{}, &txState{tx: tx, depth: depth}))
	if werr != nil {
		t.rollback(ctx, tx, depth)
		if errors.Is(werr, txretry.ErrRollback) {
			return nil
		}
		return werr
	}

	return tx.Commit(ctx)
}

func (t *Transactor) rollback(ctx context.Context, tx pgx.Tx, depth int) {
	// The caller's ctx may already be cancelled; the rollback must still go out.
	err := tx.Rollback(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) && t.logger != nil {
		t.logger.Verbose("rollback at depth %d failed: %v", depth, err)
	}
}

// OpenBoundaries returns the number of transactions and savepoints open on ctx.
func (t *Transactor) OpenBoundaries(ctx context.Context) int {
	if s, ok := ctx.Value(txKey{}).(*txState); ok {
		return s.depth
	}
	return 0
}

// Logger returns the configured logger, or nil.
func (t *Transactor) Logger(context.Context) txretry.Logger {
	return t.logger
}

// TxFromContext returns the innermost transaction carried by ctx, or nil
// outside a Transactor.Run.
func TxFromContext(ctx context.Context) pgx.Tx {
	if s, ok := ctx.Value(txKey{}).(*txState); ok {
		return s.tx
	}
	return nil
}

// ParseIsoLevel converts an isolation level name to pgx's representation.
func ParseIsoLevel(name string) (pgx.TxIsoLevel, error) {
	normalized, err := txretry.NormalizeIsolation(name)
	if err != nil {
		return "", err
	}
	switch normalized {
	case "serializable":
		return pgx.Serializable, nil
	case "repeatable read":
		return pgx.RepeatableRead, nil
	case "read committed":
		return pgx.ReadCommitted, nil
	default:
		return pgx.ReadUncommitted, nil
	}
}

var _ txretry.TransactionPrimitive = (*Transactor)(nil)
