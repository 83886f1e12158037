package domain

import "time"

// Purpose scopes a single-use token.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email-verification"
	PurposePasswordReset     Purpose = "password-reset"
	PurposeTwoFactor         Purpose = "two-factor"
)

// Lifetimes per purpose.
const (
	EmailVerificationTTL = 1440 * time.Minute
	PasswordResetTTL     = 60 * time.Minute
	TwoFactorTTL         = 10 * time.Minute
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset, PurposeTwoFactor:
		return true
	}
	return false
}

// TTL returns how long a token of this purpose stays live. Unknown purposes return 0.
func (p Purpose) TTL() time.Duration {
	switch p {
	case PurposeEmailVerification:
		return EmailVerificationTTL
	case PurposePasswordReset:
		return PasswordResetTTL
	case PurposeTwoFactor:
		return TwoFactorTTL
	}
	return 0
}

// NumericCode reports whether tokens of this purpose are 6-digit codes rather than 64-char hex.
func (p Purpose) NumericCode() bool {
	return p == PurposeTwoFactor
}

// Token is a persisted single-use secret. Only the SHA-256 of the value is stored.
type Token struct {
	ValueHash string
	AccountID string
	Purpose   Purpose
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Live reports whether the token has not yet expired at now.
func (t *Token) Live(now time.Time) bool {
	return t.ExpiresAt.After(now)
}
