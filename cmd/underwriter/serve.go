package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/packet-underwriter/internal/async"
	"github.com/joseph-ayodele/packet-underwriter/internal/export"
	"github.com/joseph-ayodele/packet-underwriter/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the evaluation HTTP API and the gRPC health endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("token", "", "bearer token required on /v1 routes (env UNDERWRITER_SERVER_TOKEN)")
	_ = v.BindPFlag("server.token", serveCmd.Flags().Lookup("token"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if err := a.store.Ping(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping record store", "error", err)
		return err
	}

	queue := async.NewEvaluationQueue(a.evaluator, logger,
		async.WithWorkers(a.cfg.Server.Workers),
		async.WithQueueSize(a.cfg.Server.QueueSize),
		async.WithEvaluationTimeout(a.cfg.Server.EvalTimeout),
	)

	ping := func(ctx context.Context) error { return a.store.Ping(ctx, 3*time.Second) }
	httpSrv := &http.Server{
		Addr: a.cfg.Server.HTTPAddr,
		Handler: server.NewHandler(server.Deps{
			Evaluator: a.evaluator,
			Queue:     queue,
			Exporter:  export.NewService(logger),
			Ping:      ping,
			Token:     v.GetString("server.token"),
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv, hs := server.NewGRPCServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("underwriter listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return server.ServeGRPC(gctx, grpcSrv, a.cfg.Server.GRPCAddr, logger) })
	g.Go(func() error {
		server.WatchStore(gctx, hs, ping, 30*time.Second, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		queue.Shutdown(shutdownCtx)
		return err
	})
	return g.Wait()
}
