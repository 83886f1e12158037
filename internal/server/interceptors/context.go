package interceptors

import (
	"context"

	sessiondomain "identity-portal/internal/session/domain"
)

type contextKey struct{ name string }

var sessionKey = contextKey{"session"}

// WithSession returns a context carrying the caller's session claims.
func WithSession(ctx context.Context, claims sessiondomain.Claims) context.Context {
	return context.WithValue(ctx, sessionKey, claims)
}

// SessionFrom returns the session claims from context and true if set; otherwise zero claims, false.
func SessionFrom(ctx context.Context) (sessiondomain.Claims, bool) {
	c, ok := ctx.Value(sessionKey).(sessiondomain.Claims)
	return c, ok
}
