// Package session establishes and refreshes signed session tokens.
package session

import (
	"errors"
	"fmt"

	"identity-portal/internal/security"
	"identity-portal/internal/session/domain"
)

// ErrInvalidSession is returned for missing, expired or tampered session tokens.
var ErrInvalidSession = errors.New("session: invalid or expired")

// Manager issues session tokens valid for 24 hours from sign-in and refreshes them
// once older than an hour. Refreshing never extends a session past that limit.
type Manager struct {
	tokens *security.TokenProvider
}

// NewManager returns a Manager signing with tokens.
func NewManager(tokens *security.TokenProvider) *Manager {
	return &Manager{tokens: tokens}
}

// Establish issues a session for claims.
func (m *Manager) Establish(claims domain.Claims) (*domain.Grant, error) {
	token, expiresAt, err := m.tokens.Issue(claims.AccountID, claims.Role, claims.EmailVerifiedAt)
	if err != nil {
		return nil, fmt.Errorf("session: issue: %w", err)
	}
	sc, err := m.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("session: issue: %w", err)
	}
	return &domain.Grant{Token: token, ExpiresAt: expiresAt, Claims: fromToken(sc)}, nil
}

// Inspect validates token and returns its claims. When the session is due for
// refresh, refreshed holds the replacement grant; otherwise it is nil.
func (m *Manager) Inspect(token string) (claims domain.Claims, refreshed *domain.Grant, err error) {
	sc, err := m.tokens.Validate(token)
	if err != nil {
		return domain.Claims{}, nil, ErrInvalidSession
	}
	claims = fromToken(sc)
	next, expiresAt, ok, err := m.tokens.Refresh(sc)
	if errors.Is(err, security.ErrInvalidToken) {
		return domain.Claims{}, nil, ErrInvalidSession
	}
	if err != nil {
		return domain.Claims{}, nil, fmt.Errorf("session: refresh: %w", err)
	}
	if !ok {
		return claims, nil, nil
	}
	nc, err := m.tokens.Validate(next)
	if err != nil {
		return domain.Claims{}, nil, fmt.Errorf("session: refresh: %w", err)
	}
	return claims, &domain.Grant{Token: next, ExpiresAt: expiresAt, Claims: fromToken(nc)}, nil
}

func fromToken(sc *security.SessionClaims) domain.Claims {
	c := domain.Claims{AccountID: sc.Subject, Role: sc.Role}
	if sc.EmailVerifiedAt != nil {
		t := sc.EmailVerifiedAt.Time
		c.EmailVerifiedAt = &t
	}
	if sc.SessionStart != nil {
		c.SessionStart = sc.SessionStart.Time
	}
	if sc.IssuedAt != nil {
		c.IssuedAt = sc.IssuedAt.Time
	}
	if sc.ExpiresAt != nil {
		c.ExpiresAt = sc.ExpiresAt.Time
	}
	return c
}
