package server

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the health service next to the
// overall ("") status.
const ServiceName = "atabuy.orders"

type Health struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewHealth() *Health {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Health{grpc: gs, health: hs}
}

// Serve blocks until ctx is cancelled. On shutdown every service is
// reported NOT_SERVING before the listener closes.
func (h *Health) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[health] grpc listen on %s...", lis.Addr())
		errCh <- h.grpc.Serve(lis)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	h.health.Shutdown()
	h.grpc.GracefulStop()
	return nil
}

func (h *Health) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(ServiceName, status)
}

// Watch runs check every interval and reports NOT_SERVING while it fails.
func (h *Health) Watch(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	serving := true
	for {
		err := check(ctx)
		if ok := err == nil; ok != serving {
			serving = ok
			if !ok {
				log.Printf("[health] not serving: %v", err)
			} else {
				log.Println("[health] serving again")
			}
		}
		h.SetServing(serving)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
