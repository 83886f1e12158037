package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"identity-portal/internal/account/domain"
	"identity-portal/internal/db"
)

const accountColumns = `id, email, name, image, password_hash, array_to_string(methods, ','),
	email_verified_at, two_factor_enabled, role, created_at, updated_at`

// PostgresRepository stores accounts in the accounts table.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an account repository backed by conn, which may be a *sql.DB or a transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail returns the account with the given normalized email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, domain.NormalizeEmail(email))
	return scanAccount(row)
}

// Create inserts a. Returns ErrEmailTaken when the email is already registered.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts
		(id, email, name, image, password_hash, methods, email_verified_at, two_factor_enabled, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, string_to_array($6, ','), $7, $8, $9, $10, $11)`,
		a.ID, a.Email, nullString(a.Name), nullString(a.Image), nullString(a.PasswordHash),
		domain.JoinMethods(a.Methods), nullTime(a.EmailVerifiedAt), a.TwoFactorEnabled, string(a.Role),
		a.CreatedAt, a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// Update applies the non-nil fields of p to the account. Returns ErrNotFound if no row matched.
func (r *PostgresRepository) Update(ctx context.Context, id string, p domain.Patch) error {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Name != nil {
		add("name", nullString(*p.Name))
	}
	if p.Image != nil {
		add("image", nullString(*p.Image))
	}
	if p.PasswordHash != nil {
		add("password_hash", nullString(*p.PasswordHash))
	}
	if p.Methods != nil {
		args = append(args, domain.JoinMethods(p.Methods))
		sets = append(sets, fmt.Sprintf("methods = string_to_array($%d, ',')", len(args)))
	}
	if p.EmailVerifiedAt != nil {
		add("email_verified_at", *p.EmailVerifiedAt)
	}
	if p.TwoFactorEnabled != nil {
		add("two_factor_enabled", *p.TwoFactorEnabled)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)
	query := fmt.Sprintf("UPDATE accounts SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes the account and, by cascade, its tokens. Returns ErrNotFound if no row matched.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a                   domain.Account
		name, image, pwHash sql.NullString
		methods, role       string
		verifiedAt          sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &name, &image, &pwHash, &methods, &verifiedAt,
		&a.TwoFactorEnabled, &role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Name = name.String
	a.Image = image.String
	a.PasswordHash = pwHash.String
	a.Methods = domain.SplitMethods(methods)
	a.Role = domain.Role(role)
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		a.EmailVerifiedAt = &t
	}
	return &a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
