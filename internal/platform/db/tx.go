package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerTxOptions is used by every check-then-write sequence. READ COMMITTED
// makes a statement issued after SELECT ... FOR UPDATE see rows committed by the
// transaction that held the lock before us.
var LedgerTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx executes a function within a transaction using the given options.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// NullInt64 maps zero to SQL NULL.
func NullInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

// NullString maps the empty string to SQL NULL.
func NullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
