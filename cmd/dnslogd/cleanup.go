package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/collector"
	"github.com/user/dnslogd/internal/storage"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete shards and summaries past retention",
	Long: `Delete dns-logs-* and summary-* files older than retention_days and purge
matching rows from the query index. The daemon does this once a day on its own.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cutoff := time.Now().Add(-cfg.Retention())

	removed, err := collector.RemoveExpired(cfg.StorageDir, cutoff)
	for _, name := range removed {
		fmt.Printf("Removed %s\n", name)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	indexPath := filepath.Join(cfg.StorageDir, storage.IndexFileName)
	if _, statErr := os.Stat(indexPath); statErr == nil {
		db, err := storage.Open(indexPath)
		if err != nil {
			return fmt.Errorf("failed to open query index: %w", err)
		}
		defer db.Close()

		rows, err := storage.NewQueryStorage(db).Cleanup(cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d indexed queries\n", rows)
	}

	fmt.Printf("Removed %d files older than %d days\n", len(removed), cfg.RetentionDays)
	return nil
}
