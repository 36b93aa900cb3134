package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is the subset of *pgxpool.Pool (and pgx.Tx, via savepoints)
// needed to start a transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction when db can start one, so multi-write
// sequences (state change + incident + outbox) commit or roll back together.
// Handles that cannot begin a transaction run fn directly.
func WithTx(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	b, ok := db.(TxBeginner)
	if !ok {
		return fn(db)
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
