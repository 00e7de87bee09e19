// Package db provides PostgreSQL-backed repository implementations over the
// commerce read model. Orders, carts, gift cards and fulfillments live in
// denormalized tables replicated from the storefront platform: scalar columns
// for the base entity plus one JSONB column per relation, so a retrieval can
// hydrate exactly the relations a caller asks for. All repositories accept a
// DBTX interface satisfied by both *pgxpool.Pool and pgx.Tx.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
