package repository

import (
	"context"
	"time"

	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/token/domain"
)

// Lookup selects a live token. AccountID is optional and narrows the match to one account.
type Lookup struct {
	ValueHash string
	Purpose   domain.Purpose
	AccountID string
	Now       time.Time
}

// Match is a live token joined to its owning account. Account carries no password hash.
type Match struct {
	Token   domain.Token
	Account *accountdomain.Account
}

// Repository defines persistence for single-use tokens.
type Repository interface {
	// Replace stores t as the only token for (t.AccountID, t.Purpose), dropping any previous one.
	Replace(ctx context.Context, t *domain.Token) error
	// FindLive returns the token matching l whose expiry is after l.Now, or nil if none.
	FindLive(ctx context.Context, l Lookup) (*Match, error)
	// Delete removes the purpose token with valueHash. Deleting nothing is not an error.
	Delete(ctx context.Context, purpose domain.Purpose, valueHash string) error
	// DeleteFor removes the (accountID, purpose) token if its hash is valueHash and reports whether it did.
	DeleteFor(ctx context.Context, accountID string, purpose domain.Purpose, valueHash string) (bool, error)
}
