package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"nomadcastd/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show subscriptions and cache state of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			status, err := fetchStatus(cfg.BaseURL() + "/api/status")
			if err != nil {
				return err
			}
			if jsonOutput || !stdoutIsTerminal() {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(status)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(status))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func fetchStatus(url string) (*daemon.Status, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon answered %s", resp.Status)
	}
	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

func renderStatus(status *daemon.Status) string {
	rows := make([][]string, 0, len(status.Shows))
	for _, show := range status.Shows {
		refreshed := "never"
		if show.LastRefreshedAt != nil {
			refreshed = show.LastRefreshedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			show.Locator.Name,
			show.Title,
			refreshed,
			fmt.Sprintf("%d", show.CachedEpisodes),
			fmt.Sprintf("%d", show.PendingEpisodes),
			formatBytes(show.CachedBytes),
			show.LastError,
		})
	}
	out := renderTable(
		[]string{"Show", "Title", "Refreshed", "Cached", "Pending", "Size", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
	out += fmt.Sprintf("\nQueue depth: %d\nStorage: %s\n", status.QueueDepth, status.Storage)
	return out
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
