package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/actus/internal/app"
	"github.com/alanyoungcy/actus/internal/config"
)

var modeOverride string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the service in the configured mode",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, modeOverride)
	},
}

var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Run only the keeper: progress due assets and archive closed ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, "keeper")
	},
}

func init() {
	serveCmd.Flags().StringVar(&modeOverride, "mode", "", "override the configured mode (server, keeper, full, memory)")
}

func run(cmd *cobra.Command, mode string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Mode = mode
	}
	logger := newLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}
	logger.Info("actusd starting",
		slog.String("version", version),
		slog.String("mode", cfg.Mode),
		slog.Any("config", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return fmt.Errorf("run: %w", err)
	}
	logger.Info("actusd stopped")
	return nil
}
