package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool with the tenant-session transaction helper every
// repository in this module builds its queries on.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new database pool from a connection string
func NewPool(ctx context.Context, connString string) (*Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the database pool
func (p *Pool) Close() {
	p.Pool.Close()
}

// WithTx executes fn inside a transaction, scoped to the given tenant
// schema and RLS session variables, committing on success and rolling
// back on any error or panic recovery upstream.
func (p *Pool) WithTx(ctx context.Context, schemaName, companyID string, isSuperAdmin bool, fn func(pgx.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if schemaName != "" && schemaName != "public" {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schemaName)); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
	}
	if err := SetTenantSession(ctx, tx, companyID, isSuperAdmin); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
