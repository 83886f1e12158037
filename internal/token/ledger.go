// Package token issues, checks and consumes single-use secrets for email
// verification, password reset and two-factor sign-in.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-portal/internal/security"
	"identity-portal/internal/token/domain"
	"identity-portal/internal/token/repository"
)

// Purpose re-exports the token purpose type for callers of the ledger.
type Purpose = domain.Purpose

const (
	PurposeEmailVerification = domain.PurposeEmailVerification
	PurposePasswordReset     = domain.PurposePasswordReset
	PurposeTwoFactor         = domain.PurposeTwoFactor
)

var (
	// ErrInvalidOrExpired is the single outcome for any token that cannot be used.
	ErrInvalidOrExpired = errors.New("token: invalid or expired")
	// ErrUnknownPurpose is returned when issuing for an unsupported purpose.
	ErrUnknownPurpose = errors.New("token: unknown purpose")
	// ErrAmbiguousValue is returned when revoking by value alone could hit another account's token.
	ErrAmbiguousValue = errors.New("token: value does not identify one token")
)

// Issued is a freshly issued token. Value is the plaintext handed to the notifier; it is never stored.
type Issued struct {
	Value     string
	Purpose   Purpose
	AccountID string
	ExpiresAt time.Time
}

// Match is a verified live token joined to its owning account.
type Match = repository.Match

// Ledger issues and verifies single-use tokens. At most one token per (account, purpose)
// is live; issuing replaces the previous one.
type Ledger struct {
	repo repository.Repository
	now  func() time.Time
}

// NewLedger returns a Ledger persisting to repo.
func NewLedger(repo repository.Repository) *Ledger {
	return &Ledger{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a Ledger reading the time from now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	return &Ledger{repo: l.repo, now: now}
}

// Bind returns a Ledger with the same clock writing to repo, typically a transaction-scoped repository.
func (l *Ledger) Bind(repo repository.Repository) *Ledger {
	return &Ledger{repo: repo, now: l.now}
}

// Issue creates a new token for accountID, replacing any existing token of the same purpose.
// If persistence fails no token is issued.
func (l *Ledger) Issue(ctx context.Context, purpose Purpose, accountID string) (*Issued, error) {
	if !purpose.Valid() {
		return nil, ErrUnknownPurpose
	}
	var (
		value string
		err   error
	)
	if purpose.NumericCode() {
		value, err = NewCode()
	} else {
		value, err = NewLinkToken()
	}
	if err != nil {
		return nil, fmt.Errorf("token: generate: %w", err)
	}
	now := l.now()
	t := &domain.Token{
		ValueHash: security.HashSecret(value),
		AccountID: accountID,
		Purpose:   purpose,
		ExpiresAt: now.Add(purpose.TTL()),
		CreatedAt: now,
	}
	if err := l.repo.Replace(ctx, t); err != nil {
		return nil, fmt.Errorf("token: store: %w", err)
	}
	return &Issued{Value: value, Purpose: purpose, AccountID: accountID, ExpiresAt: t.ExpiresAt}, nil
}

// VerifyOption narrows a verification.
type VerifyOption func(*repository.Lookup)

// ForAccount restricts the match to tokens owned by accountID.
func ForAccount(accountID string) VerifyOption {
	return func(l *repository.Lookup) { l.AccountID = accountID }
}

// Verify checks value for purpose without consuming it. Malformed values are
// rejected without touching the store. Any miss returns ErrInvalidOrExpired;
// store failures are returned wrapped.
func (l *Ledger) Verify(ctx context.Context, value string, purpose Purpose, opts ...VerifyOption) (*Match, error) {
	if !IsWellFormed(value, purpose) {
		return nil, ErrInvalidOrExpired
	}
	lookup := repository.Lookup{ValueHash: security.HashSecret(value), Purpose: purpose, Now: l.now()}
	for _, o := range opts {
		o(&lookup)
	}
	m, err := l.repo.FindLive(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("token: lookup: %w", err)
	}
	if m == nil || m.Account == nil {
		return nil, ErrInvalidOrExpired
	}
	return m, nil
}

// Consume deletes the matched token so it cannot be used again. It returns
// ErrInvalidOrExpired when the token was already consumed or superseded.
func (l *Ledger) Consume(ctx context.Context, m *Match) error {
	deleted, err := l.repo.DeleteFor(ctx, m.Token.AccountID, m.Token.Purpose, m.Token.ValueHash)
	if err != nil {
		return fmt.Errorf("token: consume: %w", err)
	}
	if !deleted {
		return ErrInvalidOrExpired
	}
	return nil
}

// Withdraw deletes a token this ledger issued, unless it was already superseded.
// Unlike Revoke it cannot touch another account's token with the same value.
func (l *Ledger) Withdraw(ctx context.Context, iss *Issued) error {
	_, err := l.repo.DeleteFor(ctx, iss.AccountID, iss.Purpose, security.HashSecret(iss.Value))
	return err
}

// Revoke deletes the link token with value for purpose. Revoking a missing token is
// not an error. Two-factor codes can repeat across accounts, so they are refused
// with ErrAmbiguousValue; use Withdraw or Consume for them.
func (l *Ledger) Revoke(ctx context.Context, purpose Purpose, value string) error {
	switch purpose {
	case PurposeEmailVerification, PurposePasswordReset:
	case PurposeTwoFactor:
		return ErrAmbiguousValue
	default:
		return ErrUnknownPurpose
	}
	if !IsWellFormed(value, purpose) {
		return nil
	}
	return l.repo.Delete(ctx, purpose, security.HashSecret(value))
}
