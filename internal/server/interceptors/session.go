package interceptors

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"identity-portal/internal/logging"
	"identity-portal/internal/session"
)

const bearerPrefix = "bearer "

// Response headers carrying a refreshed session.
const (
	SessionTokenHeader   = "x-session-token"
	SessionExpiresHeader = "x-session-expires-at"
)

// SessionUnary returns a unary server interceptor that validates the Bearer session
// token from gRPC metadata and puts its claims on the context. When the session is
// older than the refresh age, the replacement token is sent in the x-session-token
// response header.
// publicMethods is the set of full method names that do not require a session
// (e.g. Register, Login, VerifyEmail). A bad token on a public method is ignored.
func SessionUnary(sessions *session.Manager, publicMethods map[string]bool, log logging.Logger) grpc.UnaryServerInterceptor {
	log = logging.OrDiscard(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		claims, refreshed, err := sessions.Inspect(token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			if !errors.Is(err, session.ErrInvalidSession) {
				log.Error(ctx, "session inspect failed", "method", info.FullMethod, "error", err)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		if refreshed != nil {
			md := metadata.Pairs(
				SessionTokenHeader, refreshed.Token,
				SessionExpiresHeader, refreshed.ExpiresAt.UTC().Format(time.RFC3339),
			)
			if err := grpc.SetHeader(ctx, md); err != nil {
				log.Warn(ctx, "could not send refreshed session", "method", info.FullMethod, "error", err)
			} else {
				claims = refreshed.Claims
			}
		}

		return handler(WithSession(ctx, claims), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
