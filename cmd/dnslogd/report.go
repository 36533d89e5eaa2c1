package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/devicemap"
	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/report"
	"github.com/user/dnslogd/internal/storage"
)

var (
	reportLast   string
	reportClient string
	reportOutput string
	reportTop    int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a DNS traffic report",
	Long: `Generate a DNS traffic report from the query index.

Examples:
  dnslogd report --last 24h
  dnslogd report --last 7d --client 192.168.1.5
  dnslogd report --last 1h --output -`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range (e.g., 1h, 24h, 7d, 2w)")
	reportCmd.Flags().StringVar(&reportClient, "client", "",
		"Add a detailed section for this client IP")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Output file path, or - for stdout (default: auto-generated)")
	reportCmd.Flags().IntVar(&reportTop, "top", report.DefaultTopDomains,
		"Number of domains to list")
}

func runReport(cmd *cobra.Command, args []string) error {
	duration, err := parseDuration(reportLast)
	if err != nil {
		return fmt.Errorf("invalid time range: %w", err)
	}

	until := time.Now()
	since := until.Add(-duration)

	indexPath := filepath.Join(cfg.StorageDir, storage.IndexFileName)
	if _, err := os.Stat(indexPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no query index at %s; run the collector with index_enabled first", indexPath)
	}

	db, err := storage.Open(indexPath)
	if err != nil {
		return fmt.Errorf("failed to open query index: %w", err)
	}
	defer db.Close()

	devices, _ := devicemap.LoadOrEmpty(cfg.DeviceMapPath)
	gen := report.NewGenerator(storage.NewQueryStorage(db), devices)

	data, err := gen.Generate(model.ReportOptions{
		Since:    since,
		Until:    until,
		Client:   reportClient,
		TopN:     reportTop,
		Format:   "markdown",
		SourceID: indexPath,
	})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if err := emitReport(data, reportOutput); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Report Summary:")
	fmt.Printf("  Queries: %d\n", data.TotalQueries)
	fmt.Printf("  Clients: %d\n", len(data.TopClients))
	fmt.Printf("  Query types: %d\n", len(data.QueryTypes))
	return nil
}

// emitReport writes Markdown to the default report directory, stdout ("-")
// or the given path.
func emitReport(data *report.ReportData, output string) error {
	switch output {
	case "":
		path, err := report.WriteMarkdownFile(data, cfg.ReportOutputDir)
		if err != nil {
			return err
		}
		fmt.Printf("Report saved to: %s\n", path)
	case "-":
		fmt.Println(report.FormatMarkdown(data))
	default:
		if err := report.WriteFile(output, report.FormatMarkdown(data)); err != nil {
			return err
		}
		fmt.Printf("Report saved to: %s\n", output)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	// Handle days
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}

	// Handle weeks
	if len(s) > 0 && s[len(s)-1] == 'w' {
		var weeks int
		if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil {
			return time.Duration(weeks) * 7 * 24 * time.Hour, nil
		}
	}

	return time.ParseDuration(s)
}
