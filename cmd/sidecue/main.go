package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidecue/sidecue/internal/app"
	"github.com/sidecue/sidecue/pkg/config"
	"github.com/sidecue/sidecue/pkg/observability"
)

var version = "dev"

func main() {
	logger := observability.LoggerFromEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.IsDevelopment() {
		logCfg := observability.DefaultLogConfig()
		logCfg.Level = observability.LogLevelDebug
		logCfg.ServiceVersion = version
		logger = observability.NewLogger(logCfg)
	}
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:     "sidecue",
		Short:   "SideCue core: playbook triggers, storage, and license gating",
		Version: version,
	}
	root.AddCommand(serveCmd(cfg, logger), seedCmd(cfg, logger), migrateCmd(cfg, logger))

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// serveCmd runs the bridge server until interrupted.
func serveCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge server for the desktop shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			container, err := app.NewContainer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing: %w", err)
			}
			defer container.Close()

			if err := container.SeedDefaults(ctx); err != nil {
				logger.Warn("failed to seed default playbooks", "error", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- container.Bridge.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("shutting down", "signal", sig)
				return container.Bridge.Shutdown(context.Background())
			}
		},
	}
}

// seedCmd inserts the bundled playbook templates.
func seedCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the default playbook templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := app.NewContainer(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing: %w", err)
			}
			defer container.Close()
			return container.SeedDefaults(cmd.Context())
		},
	}
}

// migrateCmd applies pending schema migrations and exits.
func migrateCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := app.NewContainer(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			container.Close()
			logger.Info("migrations applied")
			return nil
		},
	}
}
