package repository

import (
	"context"
	"database/sql"
	"errors"

	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/db"
	"identity-portal/internal/token/domain"
)

// PostgresRepository stores tokens in the tokens table, keyed by (account_id, purpose).
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a token repository backed by conn, which may be a *sql.DB or a transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Replace upserts on (account_id, purpose) so concurrent issuers leave exactly one row.
func (r *PostgresRepository) Replace(ctx context.Context, t *domain.Token) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tokens (account_id, purpose, value_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, purpose) DO UPDATE
		SET value_hash = EXCLUDED.value_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		t.AccountID, string(t.Purpose), t.ValueHash, t.ExpiresAt, t.CreatedAt)
	return err
}

// FindLive returns the newest live token matching l joined to its account, or nil if none.
func (r *PostgresRepository) FindLive(ctx context.Context, l Lookup) (*Match, error) {
	var (
		m                      Match
		a                      accountdomain.Account
		purpose, methods, role string
		name, image            sql.NullString
		verifiedAt             sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT t.account_id, t.purpose, t.value_hash, t.expires_at, t.created_at,
			a.id, a.email, a.name, a.image, array_to_string(a.methods, ','), a.email_verified_at,
			a.two_factor_enabled, a.role, a.created_at, a.updated_at
		FROM tokens t JOIN accounts a ON a.id = t.account_id
		WHERE t.value_hash = $1 AND t.purpose = $2 AND t.expires_at > $3 AND ($4 = '' OR t.account_id = $4)
		ORDER BY t.created_at DESC
		LIMIT 1`,
		l.ValueHash, string(l.Purpose), l.Now, l.AccountID,
	).Scan(&m.Token.AccountID, &purpose, &m.Token.ValueHash, &m.Token.ExpiresAt, &m.Token.CreatedAt,
		&a.ID, &a.Email, &name, &image, &methods, &verifiedAt,
		&a.TwoFactorEnabled, &role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Token.Purpose = domain.Purpose(purpose)
	a.Name = name.String
	a.Image = image.String
	a.Methods = accountdomain.SplitMethods(methods)
	a.Role = accountdomain.Role(role)
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		a.EmailVerifiedAt = &t
	}
	m.Account = &a
	return &m, nil
}

// Delete removes the purpose token with valueHash.
func (r *PostgresRepository) Delete(ctx context.Context, purpose domain.Purpose, valueHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE purpose = $1 AND value_hash = $2`, string(purpose), valueHash)
	return err
}

// DeleteFor removes the (accountID, purpose) token when it still holds valueHash.
// Concurrent callers block on the row lock; only one sees it deleted.
func (r *PostgresRepository) DeleteFor(ctx context.Context, accountID string, purpose domain.Purpose, valueHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE account_id = $1 AND purpose = $2 AND value_hash = $3`,
		accountID, string(purpose), valueHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
