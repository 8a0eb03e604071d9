// Package db adapts pgx to the txretry.TransactionPrimitive interface and
// establishes connection pools.
//
// Transactor runs each outermost unit of work in its own pgx transaction at
// the configured isolation level. A Run call made while a transaction is
// already carried by the context opens a savepoint instead, and reports one
// more open boundary, so the retry executor knows it must not retry there.
//
//	tr := db.NewTransactor(pool, db.WithIsolation(pgx.Serializable))
//	err := tr.Run(ctx, func(ctx context.Context) error {
//	    _, err := db.TxFromContext(ctx).Exec(ctx, "INSERT INTO jobs(name) VALUES ($1)", "fun")
//	    return err
//	})
package db
