package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestWatchStore_FlipsStatus(t *testing.T) {
	_, hs := NewGRPCServer()
	var failing atomic.Bool
	failing.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go WatchStore(ctx, hs, func(context.Context) error {
		if failing.Load() {
			return errors.New("down")
		}
		return nil
	}, 5*time.Millisecond, discardLogger())

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
		require.NoError(t, err)
		return resp.GetStatus()
	}
	assert.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_NOT_SERVING }, time.Second, 5*time.Millisecond)
	failing.Store(false)
	assert.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_SERVING }, time.Second, 5*time.Millisecond)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
