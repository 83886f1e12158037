package handler

import (
	"time"

	sessiondomain "identity-portal/internal/session/domain"
)

// Request and response messages of portal.identity.v1.CredentialService.

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	AccountID string `json:"account_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse.Status is "session", "verification_required" or "two_factor_required".
// Session is set only for "session".
type LoginResponse struct {
	Status    string   `json:"status"`
	AccountID string   `json:"account_id"`
	Email     string   `json:"email"`
	Session   *Session `json:"session,omitempty"`
}

// EmailRequest addresses an account by email.
type EmailRequest struct {
	Email string `json:"email"`
}

// TokenRequest carries a verification or reset token from an emailed link.
type TokenRequest struct {
	Token string `json:"token"`
}

type ValidateResetTokenResponse struct {
	Valid bool `json:"valid"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type VerifyTwoFactorCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// FederatedSignInRequest is the identity a provider reported after its own sign-in.
type FederatedSignInRequest struct {
	Provider string `json:"provider"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
}

type GetSessionRequest struct{}

type SessionResponse struct {
	Session *Session `json:"session"`
}

type Empty struct{}

// Session is the wire form of session claims. Token is empty when describing the
// caller's current session.
type Session struct {
	Token           string     `json:"token,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	AccountID       string     `json:"account_id"`
	Role            string     `json:"role"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	SessionStart    time.Time  `json:"session_start"`
}

func sessionFromGrant(g *sessiondomain.Grant) *Session {
	if g == nil {
		return nil
	}
	s := sessionFromClaims(g.Claims)
	s.Token = g.Token
	s.ExpiresAt = g.ExpiresAt
	return s
}

func sessionFromClaims(c sessiondomain.Claims) *Session {
	return &Session{
		ExpiresAt:       c.ExpiresAt,
		AccountID:       c.AccountID,
		Role:            c.Role,
		EmailVerifiedAt: c.EmailVerifiedAt,
		SessionStart:    c.SessionStart,
	}
}
