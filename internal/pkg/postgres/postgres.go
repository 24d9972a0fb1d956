// Package postgres wraps the pgx pool with the explicit unit-of-work
// abstraction the application layer transacts through.
//
// Multi-aggregate writes (stock decrement + checkout persist, or payment +
// order + ledger append) must commit-or-rollback atomically; services receive
// a TxRunner and never touch transaction management directly.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// Repositories take it as a parameter so the same method runs inside or
// outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner executes fn inside one database transaction. A non-nil error from
// fn (or a panic) rolls back; otherwise the transaction commits.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(q Querier) error) error
}

// DB owns the connection pool and implements TxRunner.
type DB struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Pool exposes the pool for non-transactional reads.
func (d *DB) Pool() Querier { return d.pool }

// Close releases the pool.
func (d *DB) Close() { d.pool.Close() }

// WithTx implements TxRunner.
func (d *DB) WithTx(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("postgres: commit: %w", commitErr)
		}
	}()
	err = fn(tx)
	return err
}
