// Package store groups the account and token repositories behind one unit of work.
package store

import (
	"context"

	accountrepo "identity-portal/internal/account/repository"
	tokenrepo "identity-portal/internal/token/repository"
)

// Tx exposes repositories scoped to a unit of work.
type Tx interface {
	Accounts() accountrepo.Repository
	Tokens() tokenrepo.Repository
}

// Store is the persistence boundary of the identity core.
type Store interface {
	Tx
	// WithinTx runs fn so that all of its writes apply together or not at all.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
