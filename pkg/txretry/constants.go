package txretry

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0   // Transaction committed
	ExitGeneralError    = 1   // Unknown or unclassified error
	ExitUsageError      = 2   // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3   // Internal panic (unexpected crash)
	ExitConfigError     = 10  // Invalid configuration
	ExitConnectionError = 11  // Failed to connect to database
	ExitExecutionFailed = 13  // SQL execution failed
	ExitConflict        = 15  // Isolation conflict persisted after all retries
	ExitInterrupted     = 130 // Cancelled by signal or --timeout before finishing
)

const (
	// DefaultMaxRetries is the number of retries after the initial attempt.
	DefaultMaxRetries = 3

	// DefaultFallbackWait is used once the wait schedule is exhausted.
	DefaultFallbackWait = 32 * time.Second

	// DefaultFuzz enables jitter on every pause.
	DefaultFuzz = true

	// DefaultFuzzFloor is the smallest jitter bound applied to a pause.
	DefaultFuzzFloor = time.Second

	// DefaultIsolation is the isolation level of outermost boundaries.
	DefaultIsolation = "serializable"

	// DefaultApplicationName is reported to PostgreSQL as application_name.
	DefaultApplicationName = "txretry"
)

// DefaultWaitTimes returns the default pause schedule, indexed by retry
// number minus one. A fresh slice is returned on every call.
func DefaultWaitTimes() []time.Duration {
	return []time.Duration{
		0,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
}
