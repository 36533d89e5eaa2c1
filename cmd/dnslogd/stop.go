package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the collector daemon",
	Long:  "Stop the running dnslogd daemon gracefully. It checkpoints and writes a final summary before exiting.",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	pidFile := cfg.PIDFile()

	running, pid := daemon.CheckRunning(pidFile)
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	fmt.Printf("Stopping daemon (PID %d)...\n", pid)

	if err := daemon.SendStop(pidFile); err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			fmt.Println("Daemon stopped")
			return nil
		}
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	if daemon.WaitStopped(pidFile, 30*time.Second) {
		fmt.Println("Daemon stopped")
		return nil
	}

	fmt.Println("Warning: Daemon may not have stopped completely")
	return nil
}
