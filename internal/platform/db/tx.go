package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	DBConnKey contextKey = "db_conn"
	DBTxKey   contextKey = "db_tx"
)

// Querier is the subset of pgx shared by pools, pooled connections and
// transactions. Repositories run their SQL through it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ErrNoTx is returned by operations that only make sense inside WithTx.
var ErrNoTx = errors.New("no database transaction in context")

// TxFromContext returns the transaction started by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// ConnFromContext returns the active transaction if there is one, then a
// request-scoped connection if one was attached, and nil otherwise.
func ConnFromContext(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	if conn, ok := ctx.Value(DBConnKey).(*pgxpool.Conn); ok && conn != nil {
		return conn
	}
	return nil
}

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction carried by the context passed to fn.
// When ctx already holds a transaction fn joins it. The transaction commits
// when fn returns nil and rolls back otherwise.
func WithTx(ctx context.Context, b Beginner, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	if b == nil {
		return fmt.Errorf("begin transaction: no database pool")
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LockKey takes a transaction-scoped advisory lock on key. The lock is held
// until the surrounding WithTx commits or rolls back, so concurrent callers
// locking the same key run one after another.
func LockKey(ctx context.Context, key string) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return ErrNoTx
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}

// IsUniqueViolation reports a unique constraint failure (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
