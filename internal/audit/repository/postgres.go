package repository

import (
	"context"
	"database/sql"

	"identity-portal/internal/audit/domain"
	"identity-portal/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit log repository that uses conn for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_logs (id, account_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, nullString(a.AccountID), a.Action, a.Resource, nullString(a.IP), nullString(a.Metadata), a.CreatedAt)
	return err
}

// ListByAccount returns up to limit entries for accountID, newest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, account_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a                 domain.AuditLog
			account, ip, meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &account, &a.Action, &a.Resource, &ip, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.AccountID, a.IP, a.Metadata = account.String, ip.String, meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
