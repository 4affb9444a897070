package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported by the gRPC health server.
const HealthService = "underwriter.v1.Evaluation"

// NewGRPCServer returns a gRPC server with the standard health service
// registered. The overall and service statuses start as SERVING.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchStore flips the health status whenever ping starts or stops failing.
// It returns when ctx is done.
func WatchStore(ctx context.Context, hs *health.Server, ping func(context.Context) error, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		every = 30 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := ping(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil && serving:
			logger.Warn("server.health.not_serving", "error", err)
			hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			logger.Info("server.health.serving")
			hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
			serving = true
		}
	}
}

// ServeGRPC serves on addr until ctx is done, then stops gracefully.
func ServeGRPC(ctx context.Context, srv *grpc.Server, addr string, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("gRPC server listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
