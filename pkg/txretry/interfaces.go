package txretry

import "context"

// TransactionPrimitive runs a unit of work inside a transactional boundary.
// The retry executor decorates an implementation of this interface.
type TransactionPrimitive interface {
	// Run executes work inside a boundary. The boundary commits when work
	// returns nil and rolls back otherwise. ErrRollback rolls back and is
	// not reported to the caller.
	Run(ctx context.Context, work func(ctx context.Context) error) error

	// OpenBoundaries returns how many boundaries are already open on ctx.
	OpenBoundaries(ctx context.Context) int

	// Logger returns the logger for ctx, or nil.
	Logger(ctx context.Context) Logger
}

// ErrorClassifier maps an error to an ErrorKind.
type ErrorClassifier interface {
	Classify(err error) ErrorKind
}

// Logger provides a pluggable logging interface.
// Implementations must be safe for concurrent use by multiple goroutines.
type Logger interface {
	// Verbose logs detailed diagnostic information.
	// Only logged when verbose mode is enabled.
	Verbose(format string, args ...interface{})

	// Info logs informational messages about normal operations.
	Info(format string, args ...interface{})

	// Warn logs recoverable problems such as a retried conflict.
	Warn(format string, args ...interface{})

	// Error logs error messages.
	Error(format string, args ...interface{})
}
