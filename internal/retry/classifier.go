package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// PostgreSQL error codes with a dedicated kind
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 40 - Transaction Rollback
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"

	// Class 55 - Object Not In Prerequisite State
	pgCodeLockNotAvailable = "55P03"

	// Class 57 - Operator Intervention
	pgCodeQueryCanceled = "57014"
)

// PostgreSQL error classes mapped to a kind as a whole.
const (
	pgClassConnectionException   = "08"
	pgClassInsufficientResources = "53"
	pgClassOperatorIntervention  = "57"
)

// connectionErrorPatterns match driver errors that carry no SQLSTATE.
var connectionErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"connection failure",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"server closed the connection",
	"unexpected eof",
	"connection pool exhausted",
}

// PostgreSQLErrorClassifier implements txretry.ErrorClassifier for errors
// produced by pgx and the network stack underneath it.
type PostgreSQLErrorClassifier struct{}

// NewPostgreSQLErrorClassifier creates a new PostgreSQL error classifier.
func NewPostgreSQLErrorClassifier() *PostgreSQLErrorClassifier {
	return &PostgreSQLErrorClassifier{}
}

// Classify returns the kind of err. Kinds attached with txretry.WithKind
// win over SQLSTATE codes. Context cancellation is never classified.
func (c *PostgreSQLErrorClassifier) Classify(err error) txretry.ErrorKind {
	if err == nil {
		return txretry.KindUnclassified
	}

	if kind, ok := txretry.ExplicitKind(err); ok {
		return kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return txretry.KindUnclassified
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	if isNetworkError(err) || isConnectionError(err) {
		return txretry.KindConnectionException
	}

	return txretry.KindUnclassified
}

func classifySQLState(code string) txretry.ErrorKind {
	switch code {
	case pgCodeSerializationFailure, pgCodeDeadlockDetected:
		return txretry.KindIsolationConflict
	case pgCodeLockNotAvailable:
		return txretry.KindLockNotAvailable
	case pgCodeQueryCanceled:
		return txretry.KindQueryCanceled
	}

	switch {
	case strings.HasPrefix(code, pgClassConnectionException):
		return txretry.KindConnectionException
	case strings.HasPrefix(code, pgClassInsufficientResources):
		return txretry.KindInsufficientResources
	case strings.HasPrefix(code, pgClassOperatorIntervention):
		return txretry.KindOperatorIntervention
	}

	return txretry.KindUnclassified
}

// isNetworkError checks for network-level errors.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Temporary() || opErr.Timeout() {
			return true
		}

		if opErr.Err != nil {
			switch {
			case errors.Is(opErr.Err, syscall.ECONNREFUSED),
				errors.Is(opErr.Err, syscall.ECONNRESET),
				errors.Is(opErr.Err, syscall.ENETUNREACH),
				errors.Is(opErr.Err, syscall.EHOSTUNREACH):
				return true
			}
		}
	}

	return false
}

// isConnectionError checks for connection-related errors from pgconn.
func isConnectionError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	for _, pattern := range connectionErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

var _ txretry.ErrorClassifier = (*PostgreSQLErrorClassifier)(nil)
