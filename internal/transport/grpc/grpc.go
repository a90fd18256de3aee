// Package grpc exposes podcastd's serving state over the standard gRPC
// health protocol, for load balancers and orchestrators that probe with
// grpc_health_probe rather than HTTP.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the server-wide
// ("") status.
const ServiceName = "podcastd.Jobs"

// Probe reports an error when a dependency is unavailable.
type Probe func(ctx context.Context) error

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	health *health.Server
	server *grpc.Server
}

// New creates a new gRPC transport on the given port. Both statuses start
// as NOT_SERVING.
func New(port int) *Transport {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	return &Transport{port: port, health: h, server: s}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// SetServing flips both health statuses.
func (t *Transport) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	t.health.SetServingStatus("", status)
	t.health.SetServingStatus(ServiceName, status)
}

// Watch runs probe every interval and reports the job service as serving
// only while it succeeds. It blocks until ctx is cancelled.
func (t *Transport) Watch(ctx context.Context, interval time.Duration, probe Probe) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := probe(pctx); err != nil {
			slog.Warn("grpc health probe failed", "error", err)
			t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Listen starts the gRPC server. It blocks until the context is cancelled.
func (t *Transport) Listen(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)
	return t.Serve(ctx, lis)
}

// Serve serves on an existing listener until the context is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	t.health.Shutdown()
	t.server.GracefulStop()
	return nil
}
