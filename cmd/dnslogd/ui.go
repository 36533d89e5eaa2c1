package main

import (
	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard over the collector's state.

The dashboard shows:
- Daemon and circuit breaker state
- Session totals and log offset
- Top domains and query types
- Devices seen this session

It refreshes every few seconds. Press 'r' to refresh now, 'q' to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.NewApp(cfg).Run()
	},
}
