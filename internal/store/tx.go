package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InTx runs fn inside a transaction. When q is already a *sql.Tx the work
// joins it and the outer caller owns commit/rollback.
func InTx(ctx context.Context, q DBTX, fn func(DBTX) error) error {
	switch v := q.(type) {
	case *sql.Tx:
		return fn(v)
	case *sql.DB:
		return WithTx(ctx, v, func(tx *sql.Tx) error { return fn(tx) })
	default:
		return fn(q)
	}
}

// WithTx begins a transaction, runs fn and commits. Any error or panic in fn
// rolls back every write made through tx.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
