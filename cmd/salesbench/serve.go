package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/ratelimit"
	"github.com/ashita-ai/salesbench/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the evaluation HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path when DATABASE_URL is unset (empty: no persistence)")
	return cmd
}

func (a *app) serve(ctx context.Context, dbPath string) error {
	logger := a.logger
	logger.Info("salesbench starting", "version", version, "port", a.cfg.Port)

	otelShutdown, err := a.initTelemetry(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// ctx is already cancelled here; give exporters their own budget.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := a.openStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	broker := progress.NewBroker(logger)
	engine, err := a.buildEngine(ctx, store, broker)
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if a.cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst)
		logger.Info("rate limiting enabled", "rps", a.cfg.RateLimitRPS, "burst", a.cfg.RateLimitBurst)
	}
	defer func() { _ = limiter.Close() }()

	cfg := server.ServerConfig{
		Engine:              engine,
		Logger:              logger,
		Broker:              broker,
		Limiter:             limiter,
		Port:                a.cfg.Port,
		ReadTimeout:         a.cfg.ReadTimeout,
		WriteTimeout:        a.cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: a.cfg.MaxRequestBody,
	}
	if store != nil {
		cfg.Runs = store
		cfg.Health = store
	}
	srv := server.New(cfg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	// Watcher streams never end on their own; evaluation streams are drained.
	broker.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("salesbench stopped")
	return nil
}
