// Package retry reruns PostgreSQL transactions that fail with transient
// conflicts such as serialization failures and deadlocks.
//
// An Executor decorates a txretry.TransactionPrimitive. Each call runs the
// unit of work inside the primitive's boundary; when the failure is
// classified as retryable and the call owns the outermost boundary, the
// whole unit is rerun after a pause taken from the Backoff schedule.
//
// # Example Usage
//
//	policy := retry.NewPolicy()
//	policy.SetRetryOn(txretry.KindLockNotAvailable)
//
//	executor := retry.NewExecutor(transactor, policy)
//
//	err := executor.RunWithRetry(ctx, func(ctx context.Context) error {
//	    tx := db.TxFromContext(ctx)
//	    _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - 10 WHERE id = $1", id)
//	    return err
//	}, retry.WithMaxRetries(5))
//
// # Error Classification
//
// The PostgreSQLErrorClassifier maps SQLSTATE codes and network failures to
// txretry.ErrorKind values. Isolation conflicts (40001, 40P01) are always
// retryable; other kinds only when listed in the Policy or a call option.
// Anything unclassified propagates on the first failure.
//
// # Backoff
//
// Pauses follow a fixed schedule (0, 1, 2, 4, 8, 16, 32 seconds, then 32
// seconds) with optional jitter of +/- max(25%, 1s).
//
// # Thread Safety
//
// Policy accessors and Executor calls are safe for concurrent use.
package retry
