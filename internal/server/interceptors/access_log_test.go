package interceptors

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-portal/internal/logging"
)

func TestAccessLogUnary(t *testing.T) {
	var buf bytes.Buffer
	interceptor := AccessLogUnary(logging.New(&buf, "info", "text"), map[string]bool{"/grpc.health.v1.Health/Check": true})
	ctx := context.Background()

	_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, okHandler)
	_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Ok"}, okHandler)
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Broken"},
		func(context.Context, interface{}) (interface{}, error) {
			return nil, status.Error(codes.Internal, "boom")
		})
	if status.Code(err) != codes.Internal {
		t.Fatalf("error not passed through: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "Health/Check") {
		t.Errorf("skipped method was logged:\n%s", out)
	}
	for _, want := range []string{"method=/test.Service/Ok", "code=OK", "level=ERROR", "code=Internal"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
