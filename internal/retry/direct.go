package retry

import (
	"context"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Direct is a TransactionPrimitive without a transaction: work runs as-is
// and never counts as nested. It lets the Executor retry plain operations
// such as establishing a connection pool.
type Direct struct {
	logger txretry.Logger
}

// NewDirect creates a Direct primitive. logger may be nil.
func NewDirect(logger txretry.Logger) *Direct {
	return &Direct{logger: logger}
}

// Run calls work.
func (d *Direct) Run(ctx context.Context, work func(ctx context.Context) error) error {
	return work(ctx)
}

// OpenBoundaries always returns zero.
func (d *Direct) OpenBoundaries(context.Context) int {
	return 0
}

// Logger returns the logger given to NewDirect.
func (d *Direct) Logger(context.Context) txretry.Logger {
	return d.logger
}

var _ txretry.TransactionPrimitive = (*Direct)(nil)
