package handler

import (
	"context"
	"errors"
	"testing"

	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

func serving(t *testing.T, c *Checker, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestCheck_NilPinger(t *testing.T) {
	c := NewChecker(nil, nil, "portal.identity.v1.CredentialService")
	if st := c.Check(context.Background()); st != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", st)
	}
	if st := serving(t, c, "portal.identity.v1.CredentialService"); st != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("service status = %v, want SERVING", st)
	}
}

func TestCheck_PingerFailureThenRecovery(t *testing.T) {
	p := &mockPinger{pingErr: errors.New("connection refused")}
	c := NewChecker(p, nil, "portal.identity.v1.CredentialService")

	c.Check(context.Background())
	for _, svc := range []string{"", "portal.identity.v1.CredentialService"} {
		if st := serving(t, c, svc); st != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
			t.Errorf("%q status = %v, want NOT_SERVING", svc, st)
		}
	}

	p.pingErr = nil
	c.Check(context.Background())
	if st := serving(t, c, ""); st != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status after recovery = %v, want SERVING", st)
	}
}

func TestShutdown(t *testing.T) {
	c := NewChecker(&mockPinger{}, nil)
	c.Check(context.Background())
	c.Shutdown()
	c.Check(context.Background())
	if st := serving(t, c, ""); st != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v, want NOT_SERVING", st)
	}
}
