package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nomadcastd/internal/daemon"
	"nomadcastd/internal/logging"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cache daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			runID := uuid.NewString()
			logOpts := logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			}
			if cfg.Logging.Dir != "" {
				logOpts.FilePath = filepath.Join(cfg.Logging.Dir, fmt.Sprintf("nomadcastd-%s.log", runID))
			}
			logger, err := logging.New(logOpts)
			if err != nil {
				return err
			}
			logger = logger.With(logging.String("run_id", runID))

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := d.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("daemon stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
