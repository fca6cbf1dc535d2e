package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"nomadcastd/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented sample configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config file:    %s\n", ctx.configPath)
			fmt.Fprintf(out, "bind:           %s\n", cfg.Server.Bind)
			fmt.Fprintf(out, "base url:       %s\n", cfg.BaseURL())
			fmt.Fprintf(out, "storage:        %s\n", cfg.Storage.Path)
			fmt.Fprintf(out, "subscriptions:  %s\n", cfg.Subscriptions.Path)
			fmt.Fprintf(out, "episodes/show:  %d\n", cfg.Cache.EpisodesPerShow)
			fmt.Fprintf(out, "poll interval:  %s\n", cfg.RSSPollInterval())
			if len(cfg.Transport.FetchCommand) > 0 {
				fmt.Fprintf(out, "transport:      command %v\n", cfg.Transport.FetchCommand)
			} else {
				fmt.Fprintf(out, "transport:      local dir %s\n", cfg.Transport.LocalDir)
			}
			return nil
		},
	}
}
