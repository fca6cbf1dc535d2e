package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nomadcastd/internal/locator"
	"nomadcastd/internal/subscriptions"
)

func newSubscribeCommand(ctx *commandContext) *cobra.Command {
	var episodes int
	var maxBytes int64

	cmd := &cobra.Command{
		Use:   "subscribe <locator>",
		Short: "Add a show to the subscription file",
		Long:  "Accepts nomadcast:HASH:NAME, nomadcast://HASH:NAME, or bare HASH:NAME locators. A running daemon picks the change up on its next reload.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loc, err := locator.Parse(args[0])
			if err != nil {
				return err
			}

			entries, err := subscriptions.Load(cfg.Subscriptions.Path, nil)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if entry.Locator.Hash == loc.Hash {
					return fmt.Errorf("already subscribed to %s", entry.Locator.URI())
				}
			}
			entries = append(entries, subscriptions.Entry{
				Locator:  loc,
				Episodes: episodes,
				MaxBytes: maxBytes,
			})
			if err := subscriptions.Save(cfg.Subscriptions.Path, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscribed to %s\n", loc.URI())
			return nil
		},
	}
	cmd.Flags().IntVar(&episodes, "episodes", 0, "Episodes to retain for this show (0 uses the configured default)")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "Byte budget for this show (0 uses the configured default)")
	return cmd
}
