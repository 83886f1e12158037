// Package handler serves the standard gRPC health service, backed by a store ping.
package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"identity-portal/internal/logging"
)

const (
	defaultInterval = 10 * time.Second
	pingTimeout     = 2 * time.Second
)

// Pinger reports whether a dependency is reachable (e.g. the store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker keeps the serving status of the overall server and the named services in
// line with the pinger. A nil pinger is always healthy.
type Checker struct {
	health   *health.Server
	pinger   Pinger
	services []string
	interval time.Duration
	log      logging.Logger
}

// NewChecker returns a Checker reporting for the overall server ("") and services.
func NewChecker(pinger Pinger, log logging.Logger, services ...string) *Checker {
	return &Checker{
		health:   health.NewServer(),
		pinger:   pinger,
		services: append([]string{""}, services...),
		interval: defaultInterval,
		log:      logging.OrDiscard(log),
	}
}

// Register registers the health service with s.
func (c *Checker) Register(s grpc.ServiceRegistrar) {
	grpc_health_v1.RegisterHealthServer(s, c.health)
}

// Check pings once and updates the serving status. Returns the status set.
func (c *Checker) Check(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if c.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := c.pinger.Ping(pctx)
		cancel()
		if err != nil {
			c.log.Warn(ctx, "health: store ping failed", "error", err)
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	for _, svc := range c.services {
		c.health.SetServingStatus(svc, st)
	}
	return st
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.health.Shutdown()
}
