package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// SessionClaims holds the JWT claims of a session token. Subject is the account id.
// SessionStart is the time the user signed in; it survives refreshes.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role            string           `json:"role"`
	EmailVerifiedAt *jwt.NumericDate `json:"email_verified_at,omitempty"`
	SessionStart    *jwt.NumericDate `json:"session_start,omitempty"`
}

// TokenProvider issues and validates session JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	maxAge     time.Duration
	updateAge  time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// Tokens are valid for maxAge and become eligible for refresh once older than updateAge.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, maxAge, updateAge time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		maxAge:     maxAge,
		updateAge:  updateAge,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the provider's time source.
func (p *TokenProvider) SetClock(now func() time.Time) {
	p.now = now
}

// Issue signs a session token for the account. verifiedAt may be nil.
// Returns the token string and its expiration time.
func (p *TokenProvider) Issue(accountID, role string, verifiedAt *time.Time) (token string, expiresAt time.Time, err error) {
	now := p.now()
	claims := SessionClaims{Role: role, SessionStart: jwt.NewNumericDate(now)}
	if verifiedAt != nil {
		claims.EmailVerifiedAt = jwt.NewNumericDate(*verifiedAt)
	}
	claims.Subject = accountID
	return p.issueAt(claims, now, now.Add(p.maxAge))
}

// Refresh re-signs claims when the token is older than the update age. The
// new token never outlives SessionStart plus the max age; once that has passed
// Refresh returns ErrInvalidToken. refreshed is false when the token is still fresh.
func (p *TokenProvider) Refresh(claims *SessionClaims) (token string, expiresAt time.Time, refreshed bool, err error) {
	if claims == nil || claims.IssuedAt == nil {
		return "", time.Time{}, false, ErrInvalidToken
	}
	start := claims.IssuedAt.Time
	if claims.SessionStart != nil {
		start = claims.SessionStart.Time
	}
	deadline := start.Add(p.maxAge)
	now := p.now()
	if !now.Before(deadline) {
		return "", time.Time{}, false, ErrInvalidToken
	}
	if now.Sub(claims.IssuedAt.Time) <= p.updateAge {
		return "", time.Time{}, false, nil
	}
	next := *claims
	next.SessionStart = jwt.NewNumericDate(start)
	expiresAt = now.Add(p.maxAge)
	if expiresAt.After(deadline) {
		expiresAt = deadline
	}
	token, expiresAt, err = p.issueAt(next, now, expiresAt)
	if err != nil {
		return "", time.Time{}, false, err
	}
	return token, expiresAt, true, nil
}

func (p *TokenProvider) issueAt(claims SessionClaims, now, expiresAt time.Time) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Subject:   claims.Subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := p.sign(claims)
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Validate parses and validates a session token (signature, exp, iss, aud).
func (p *TokenProvider) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if !slices.Contains(claims.Audience, p.audience) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
