package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-portal/internal/logging"
)

// AccessLogUnary returns a unary server interceptor that logs one line per RPC with
// its status code, duration and client IP. Internal and unknown failures log at
// error level. skipMethods is the set of full method names to not log (e.g. health checks).
func AccessLogUnary(log logging.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	log = logging.OrDiscard(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		args := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ClientIP(ctx),
		}
		switch code {
		case codes.Internal, codes.Unknown, codes.DataLoss:
			log.Error(ctx, "rpc failed", append(args, "error", err)...)
		default:
			log.Info(ctx, "rpc", args...)
		}
		return resp, err
	}
}
