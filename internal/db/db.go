// Package db provides the narrow database-access surface shared across
// domain stores: a DBTX interface abstracting over a pool, a conn, or a
// transaction, and a small set of cross-cutting queries. Most domain
// packages (pkg/generation, pkg/account, pkg/asset, ...) build their own
// SQL directly against a DBTX rather than going through Queries — this
// mirrors the calling convention observed throughout the source project,
// where db.New(dbtx).SomeNamedQuery(...) is reserved for queries shared
// by more than one package.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with the small set of queries shared by more than
// one domain package.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given database handle.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}
