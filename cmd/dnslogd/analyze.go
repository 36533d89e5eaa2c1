package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/devicemap"
	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/report"
)

var (
	analyzeClient string
	analyzeOutput string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [logfile]",
	Short: "Analyze a ctrld log file directly",
	Long: `Analyze a ctrld log file without the collector or query index.

Prints top clients, top domains, the query type mix and recent activity.
The log file defaults to the configured ctrld log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeClient, "client", "",
		"Analyze a specific client IP")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "",
		"Also write a Markdown report to this path (- for stdout)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logPath := cfg.LogFilePath
	if len(args) == 1 {
		logPath = args[0]
	}

	fmt.Printf("Analyzing DNS log file: %s\n", logPath)

	devices, _ := devicemap.LoadOrEmpty(cfg.DeviceMapPath)
	tally, err := report.LoadLog(logPath, devices)
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d DNS queries\n\n", tally.Len())

	data, err := report.NewGenerator(tally, devices).Generate(model.ReportOptions{
		Client:   analyzeClient,
		Format:   "text",
		SourceID: logPath,
	})
	if err != nil {
		return fmt.Errorf("failed to analyze log: %w", err)
	}

	fmt.Print(report.FormatText(data))

	if analyzeOutput != "" {
		return emitReport(data, analyzeOutput)
	}
	return nil
}
