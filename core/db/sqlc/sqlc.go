// Package sqlc holds the hand-written query layer in the shape sqlc would
// generate for the pgx/v5 driver: a DBTX interface satisfied by both
// *pgxpool.Pool and pgx.Tx, a Queries struct wrapping it, and one file per
// table with its Params/Row types and SQL.
package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting Queries run
// against a plain connection or inside a transaction interchangeably.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}
