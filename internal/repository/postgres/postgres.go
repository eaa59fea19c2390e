package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExecutor abstracts pgxpool.Pool and pgx.Tx so repositories can run inside
// or outside a transaction.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// Repositories bundles every Postgres-backed repository over one pool.
type Repositories struct {
	Users    *UserRepository
	Sessions *SessionRepository
	Audit    *AuditRepository
}

// NewRepositories wires the full repository set.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(pool),
		Sessions: NewSessionRepository(pool),
		Audit:    NewAuditRepository(pool),
	}
}
