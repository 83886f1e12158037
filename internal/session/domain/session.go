package domain

import (
	"strings"
	"time"

	accountdomain "identity-portal/internal/account/domain"
)

// Session lifetime policy.
const (
	MaxAge    = 24 * time.Hour
	UpdateAge = time.Hour
)

// Claims is the authoritative view of an account carried by a session.
type Claims struct {
	AccountID       string
	Role            string
	EmailVerifiedAt *time.Time
	// SessionStart is when the user signed in; refreshes keep it.
	SessionStart time.Time
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// ClaimsFor derives session claims from an account. Role is lowercased and defaults to user.
func ClaimsFor(a *accountdomain.Account) Claims {
	role := strings.ToLower(string(a.Role))
	if role == "" {
		role = string(accountdomain.RoleUser)
	}
	c := Claims{AccountID: a.ID, Role: role}
	if a.EmailVerifiedAt != nil {
		t := *a.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	return c
}

// Grant is an established session: the bearer token and the claims it carries.
type Grant struct {
	Token     string
	ExpiresAt time.Time
	Claims    Claims
}
