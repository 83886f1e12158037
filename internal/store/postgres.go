package store

import (
	"context"
	"database/sql"

	accountrepo "identity-portal/internal/account/repository"
	"identity-portal/internal/db"
	tokenrepo "identity-portal/internal/token/repository"
)

// Postgres is a Store on a *sql.DB.
type Postgres struct {
	db       *sql.DB
	accounts *accountrepo.PostgresRepository
	tokens   *tokenrepo.PostgresRepository
}

// NewPostgres returns a Store using conn.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{
		db:       conn,
		accounts: accountrepo.NewPostgresRepository(conn),
		tokens:   tokenrepo.NewPostgresRepository(conn),
	}
}

func (s *Postgres) Accounts() accountrepo.Repository { return s.accounts }
func (s *Postgres) Tokens() tokenrepo.Repository     { return s.tokens }

// WithinTx runs fn inside a database transaction.
func (s *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, s.db, nil, func(ctx context.Context, conn db.DBTX) error {
		return fn(ctx, pgTx{
			accounts: accountrepo.NewPostgresRepository(conn),
			tokens:   tokenrepo.NewPostgresRepository(conn),
		})
	})
}

// Ping checks the database connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type pgTx struct {
	accounts accountrepo.Repository
	tokens   tokenrepo.Repository
}

func (t pgTx) Accounts() accountrepo.Repository { return t.accounts }
func (t pgTx) Tokens() tokenrepo.Repository     { return t.tokens }
