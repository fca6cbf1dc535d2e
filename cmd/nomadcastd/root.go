package main

import (
	"github.com/spf13/cobra"

	"nomadcastd/internal/config"
)

// commandContext carries the shared --config flag and the lazily loaded
// configuration between subcommands.
type commandContext struct {
	configFlag *string

	cfg        *config.Config
	configPath string
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, path, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.configPath = path
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "nomadcastd",
		Short:         "Mesh-to-HTTP podcast cache daemon",
		Long:          "nomadcastd mirrors podcasts published over a mesh transport and serves them to ordinary podcast clients over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newSubscribeCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}
