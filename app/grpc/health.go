package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "unlocks.UnlocksService"

type pinger interface {
	PingContext(ctx context.Context) error
}

// HealthReporter mirrors database reachability into the standard gRPC
// health service.
type HealthReporter struct {
	server  *health.Server
	db      pinger
	timeout time.Duration
}

func NewHealthReporter(db pinger, timeout time.Duration) *HealthReporter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthReporter{
		server:  health.NewServer(),
		db:      db,
		timeout: timeout,
	}
}

func (h *HealthReporter) Server() *health.Server {
	return h.server
}

// Check pings the database once and publishes the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	servingStatus := healthpb.HealthCheckResponse_SERVING
	if err := h.db.PingContext(pingCtx); err != nil {
		logger.WithError(err).Warn("Database health check failed")
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}

	h.server.SetServingStatus("", servingStatus)
	h.server.SetServingStatus(ServiceName, servingStatus)
	return servingStatus
}

// Run re-checks on every tick until ctx is done, then marks the service as
// shutting down.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	h.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
