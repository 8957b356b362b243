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

	"github.com/spf13/cobra"

	"github.com/conducthq/conduct/api"
	"github.com/conducthq/conduct/engine"
	"github.com/conducthq/conduct/metrics"
	"github.com/conducthq/conduct/quota"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve the Conduct HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger := cfg.newLogger()

	st, err := cfg.openStore(logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	policy := quota.Unlimited()
	if len(cfg.Quota) > 0 {
		policy = quota.NewMonthly(st, cfg.Quota)
	}

	m := metrics.New()
	eng, err := engine.Build(
		engine.WithStore(st),
		engine.WithConfig(cfg.engineConfig()),
		engine.WithLogger(logger),
		engine.WithQuota(policy),
		engine.WithExtension(m),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	registerDemoCommands(eng)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithMetricsHandler(m.Handler()),
	}
	if cfg.Server.IdentityHeader != "" {
		apiOpts = append(apiOpts, api.WithIdentityHeader(cfg.Server.IdentityHeader))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(eng, apiOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	return eng.Stop(shutdownCtx)
}
