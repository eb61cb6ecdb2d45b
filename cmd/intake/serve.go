package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/intake/api"
	"github.com/xraph/intake/config"
	"github.com/xraph/intake/observability"
	"github.com/xraph/intake/patient"
	"github.com/xraph/intake/upload"
)

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and an embedded worker pool",
		RunE:  runServe,
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func startTracing(ctx context.Context, cfg *config.Config, service string) (func(context.Context) error, error) {
	return observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: service,
		Environment: cfg.AppEnv,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := startTracing(ctx, cfg, "intake")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	b, err := openBackends(ctx, cfg, logger, true)
	if err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	defer func() { _ = b.close() }()

	reg := newRegistry()
	eng, err := buildEngine(cfg, b.queue, logger, reg)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	uploads, err := upload.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	svc := patient.NewService(b.patients, eng,
		patient.WithLogger(logger),
		patient.WithOutbox(cfg.Outbox && cfg.SharedPostgres()),
	)
	handler := api.New(eng, svc, uploads,
		api.WithLogger(logger),
		api.WithGatherer(reg),
	).Handler()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
		defer cancel()

		errs := []error{}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := eng.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("engine stop: %w", err))
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// ── worker ────────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address for /metrics; empty disables it")
	return cmd
}

func runWorker(cmd *cobra.Command, metricsAddr string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.QueueBackend == "memory" {
		return errors.New("a standalone worker cannot share a memory queue; use serve")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := startTracing(ctx, cfg, "intake-worker")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	b, err := openBackends(ctx, cfg, logger, false)
	if err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	defer func() { _ = b.close() }()

	reg := newRegistry()
	eng, err := buildEngine(cfg, b.queue, logger, reg)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	var metricsSrv *http.Server
	if metricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("worker shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
		defer cancel()

		errs := []error{eng.Stop(shutdownCtx)}
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(shutdownCtx))
		}
		errs = append(errs, shutdownTracing(shutdownCtx))
		return errors.Join(errs...)
	})

	logger.Info("worker started", slog.String("queue_backend", cfg.QueueBackend))
	return g.Wait()
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
