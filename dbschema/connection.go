// Package dbschema provides the database connection layer and live schema
// introspection.
//
// Connections are opened through the pgx stdlib driver. The Conn and Tx
// interfaces cover the small surface the engine needs (execute, query,
// transactions) so the migration runner can be tested against a fake.
package dbschema

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Conn is the connection surface the engine depends on.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one database transaction.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Commit() error
	Rollback() error
}

// DatabaseConnection wraps a *sql.DB opened with the pgx driver.
type DatabaseConnection struct {
	db *sql.DB
}

// Connect opens and pings a PostgreSQL connection. Pool parameters that only
// pgxpool understands (pool_max_conns, pool_min_conns) are stripped from the
// URL first; the stdlib driver rejects them.
func Connect(ctx context.Context, dbURL string) (*DatabaseConnection, error) {
	db, err := sql.Open("pgx", removePostgresPoolParams(dbURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DatabaseConnection{db: db}, nil
}

func (c *DatabaseConnection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *DatabaseConnection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

func (c *DatabaseConnection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Begin starts a transaction.
func (c *DatabaseConnection) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

// Close closes the underlying pool.
func (c *DatabaseConnection) Close() error {
	return c.db.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *sqlTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *sqlTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// removePostgresPoolParams strips pgxpool-only query parameters from a
// connection URL. Unparseable URLs are returned unchanged.
func removePostgresPoolParams(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return dbURL
	}
	q := u.Query()
	if !q.Has("pool_max_conns") && !q.Has("pool_min_conns") {
		return dbURL
	}
	q.Del("pool_max_conns")
	q.Del("pool_min_conns")
	u.RawQuery = q.Encode()
	return u.String()
}
