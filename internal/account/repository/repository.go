package repository

import (
	"context"
	"errors"

	"identity-portal/internal/account/domain"
)

var (
	// ErrEmailTaken is returned by Create when the normalized email is already registered.
	ErrEmailTaken = errors.New("account: email already taken")
	// ErrNotFound is returned by Update and Delete when no account has the id.
	ErrNotFound = errors.New("account: not found")
)

// Repository defines persistence for accounts. Lookups return nil, nil for missing rows.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, id string, p domain.Patch) error
	Delete(ctx context.Context, id string) error
}
