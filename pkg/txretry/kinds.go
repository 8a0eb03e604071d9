package txretry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a transaction failure for retry decisions.
type ErrorKind string

const (
	// KindUnclassified is every failure the classifier does not recognise.
	// It is never retried.
	KindUnclassified ErrorKind = "unclassified"

	// KindIsolationConflict covers serialization failures (40001) and
	// deadlocks (40P01). Always retried at the outermost boundary.
	KindIsolationConflict ErrorKind = "isolation_conflict"

	// KindConnectionException covers SQLSTATE class 08 and network failures.
	KindConnectionException ErrorKind = "connection_exception"

	// KindLockNotAvailable covers 55P03 (lock_timeout, NOWAIT).
	KindLockNotAvailable ErrorKind = "lock_not_available"

	// KindInsufficientResources covers SQLSTATE class 53.
	KindInsufficientResources ErrorKind = "insufficient_resources"

	// KindOperatorIntervention covers SQLSTATE class 57 except query_canceled.
	KindOperatorIntervention ErrorKind = "operator_intervention"

	// KindQueryCanceled covers 57014 (statement_timeout, pg_cancel_backend).
	KindQueryCanceled ErrorKind = "query_canceled"
)

var knownKinds = []ErrorKind{
	KindUnclassified,
	KindIsolationConflict,
	KindConnectionException,
	KindLockNotAvailable,
	KindInsufficientResources,
	KindOperatorIntervention,
	KindQueryCanceled,
}

// ParseErrorKind converts a configuration value such as "lock_not_available"
// or "lock-not-available" into an ErrorKind. Unknown names are accepted
// verbatim so callers can use their own kinds with WithKind.
func ParseErrorKind(s string) (ErrorKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	if name == "" {
		return "", fmt.Errorf("empty error kind: %w", ErrInvalidConfig)
	}
	for _, k := range knownKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return ErrorKind(name), nil
}

// KindSet is an unordered set of error kinds.
type KindSet map[ErrorKind]struct{}

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...ErrorKind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether k is in the set. A nil set contains nothing.
func (s KindSet) Has(k ErrorKind) bool {
	_, ok := s[k]
	return ok
}

// Union returns a new set holding the kinds of s and every other set.
func (s KindSet) Union(others ...KindSet) KindSet {
	out := make(KindSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	for _, o := range others {
		for k := range o {
			out[k] = struct{}{}
		}
	}
	return out
}

// Slice returns the kinds in lexical order.
func (s KindSet) Slice() []ErrorKind {
	out := make([]ErrorKind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KindError attaches an explicit ErrorKind to an error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

// WithKind marks err with kind. Classifiers consult explicit kinds before
// looking at SQLSTATE codes. Returns nil when err is nil.
func WithKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

func (e *KindError) Error() string {
	return e.Err.Error()
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// ErrorKind implements the Kinded interface.
func (e *KindError) ErrorKind() ErrorKind {
	return e.Kind
}

// Kinded is implemented by errors that carry their own classification.
type Kinded interface {
	ErrorKind() ErrorKind
}

// ExplicitKind returns the kind attached to err or anything it wraps.
func ExplicitKind(err error) (ErrorKind, bool) {
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind(), true
	}
	return "", false
}
