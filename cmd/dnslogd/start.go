package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/collector"
	"github.com/user/dnslogd/internal/daemon"
	"github.com/user/dnslogd/internal/util"
)

// daemonOutput receives stdout and stderr of a background daemon.
const daemonOutput = "dnslogd.out"

var (
	foreground bool
	startOnce  bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the collector daemon",
	Long:  "Start the dnslogd collector in the background, or in the foreground with -f.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&startOnce, "once", false,
		"Perform one collection and summary, then exit")
}

func runStart(cmd *cobra.Command, args []string) error {
	if startOnce {
		return collectOnce(cmd)
	}

	if running, pid := daemon.CheckRunning(cfg.PIDFile()); running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if foreground {
		return runForeground()
	}
	return runBackground()
}

func runForeground() error {
	if running, pid := daemon.CheckRunning(cfg.PIDFile()); running {
		return fmt.Errorf("daemon is already running (PID %d)", pid)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("Collecting %s every %d minute(s). Press Ctrl+C to stop.\n",
		cfg.LogFilePath, cfg.PollIntervalMinutes)

	return d.Wait()
}

func runBackground() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// The child inherits our working directory so relative settings resolve
	// to the same files.
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := cfg.AbsPaths(workDir); err != nil {
		return err
	}

	if err := util.EnsureDir(cfg.StorageDir); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	args := []string{"start", "--foreground"}
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return err
		}
		args = append(args, "--config", abs)
	}

	outPath := filepath.Join(cfg.StorageDir, daemonOutput)
	pid, err := daemon.Spawn(executable, args, workDir, outPath)
	if err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	fmt.Printf("dnslogd daemon started (PID %d)\n", pid)
	fmt.Printf("Storage: %s\n", cfg.StorageDir)
	fmt.Printf("Output: %s\n", outPath)
	return nil
}

func collectOnce(cmd *cobra.Command) error {
	c := collector.New(cfg)
	if err := c.Initialize(); err != nil {
		return err
	}
	return daemon.RunOnce(cmd.Context(), c)
}
