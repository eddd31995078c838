// Package health reports controller liveness over the gRPC health protocol.
// The controller service turns NOT_SERVING after a run of consecutive failed
// acquisitions and SERVING again on the next success.
package health

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name clients should query.
const Service = "scanroam.Controller"

// Reporter tracks acquisition outcomes and publishes the resulting status.
type Reporter struct {
	server    *health.Server
	threshold int

	mu          sync.Mutex
	consecutive int
	serving     bool
}

// NewReporter starts SERVING. threshold < 1 is treated as 1.
func NewReporter(threshold int) *Reporter {
	if threshold < 1 {
		threshold = 1
	}
	r := &Reporter{server: health.NewServer(), threshold: threshold, serving: true}
	r.server.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return r
}

// AcquireSucceeded resets the failure run.
func (r *Reporter) AcquireSucceeded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutive = 0
	if !r.serving {
		r.serving = true
		log.Printf("[health] acquisition recovered, serving")
		r.server.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	}
}

// AcquireFailed extends the failure run.
func (r *Reporter) AcquireFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutive++
	if r.serving && r.consecutive >= r.threshold {
		r.serving = false
		log.Printf("[health] %d consecutive acquisition failures, not serving", r.consecutive)
		r.server.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Healthy reports the current status and failure run length.
func (r *Reporter) Healthy() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.serving, r.consecutive
}

// Register adds the health service to s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Serve runs a gRPC server with the health service on addr until ctx is
// cancelled.
func (r *Reporter) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return r.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener.
func (r *Reporter) ServeListener(ctx context.Context, lis net.Listener) error {
	s := grpc.NewServer()
	r.Register(s)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()
	log.Printf("[health] gRPC health service listening on %s", lis.Addr())

	select {
	case <-ctx.Done():
		r.server.Shutdown()
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
