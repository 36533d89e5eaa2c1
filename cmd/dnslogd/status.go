package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/collector"
	"github.com/user/dnslogd/internal/daemon"
	"github.com/user/dnslogd/internal/storage"
	"github.com/user/dnslogd/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collector status",
	Long:  "Show the daemon state, circuit breaker and the current collection session.",
	RunE:  runStatus,
}

func printField(label, value string) {
	fmt.Printf("  %s %s\n", tui.LabelStyle.Render(label), tui.ValueStyle.Render(value))
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println(tui.TitleStyle.Render("dnslogd Status"))
	fmt.Println()

	running, pid := daemon.CheckRunning(cfg.PIDFile())
	fmt.Print(tui.LabelStyle.Render("Daemon:") + " ")
	if running {
		fmt.Println(tui.RenderStatus(true, fmt.Sprintf("Running (PID %d)", pid), ""))
	} else {
		fmt.Println(tui.RenderStatus(false, "", "Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.StorageDir); err == nil {
		if running {
			printField("Started:", sf.StartTime)
			printField("Uptime:", sf.Uptime)
		}

		fmt.Println("  " + tui.LabelStyle.Render("Breaker:") + " " +
			tui.RenderBreaker(sf.Collector.Breaker, sf.Collector.BackoffDelay))
		if sf.Collector.LastError != "" {
			printField("Last error:", sf.Collector.LastError)
		}

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(tui.TitleStyle.Render("Jobs"))
			for _, job := range sf.Jobs {
				state := "idle"
				if job.Running {
					state = "running"
				}
				fmt.Printf("  %s: %s (last: %s, next: %s, errors: %d)\n",
					tui.LabelStyle.Render(job.Name),
					tui.ValueStyle.Render(state),
					job.LastRun.Format("15:04:05"),
					job.NextRun.Format("15:04:05"),
					job.ErrorCount)
			}
		}
	}

	raw, err := os.ReadFile(filepath.Join(cfg.StorageDir, collector.CheckpointFileName))
	if err == nil {
		session, err := collector.DecodeSession(raw, cfg.MaxErrorEntries)
		if err != nil {
			fmt.Println(tui.WarningStyle.Render(fmt.Sprintf("Checkpoint unreadable: %v", err)))
		} else {
			fmt.Println()
			fmt.Println(tui.TitleStyle.Render("Session"))
			printField("ID:", session.ID)
			printField("Started:", session.StartTime.Format("2006-01-02 15:04:05"))
			printField("Collections:", fmt.Sprintf("%d", session.Collections))
			printField("Queries:", fmt.Sprintf("%d", session.TotalQueries))
			printField("Devices:", fmt.Sprintf("%d", len(session.UniqueDevices)))
			printField("Offset:", fmt.Sprintf("%d bytes", session.LastProcessedPosition))
			if !session.LastCollection.IsZero() {
				printField("Last run:", session.LastCollection.Format("2006-01-02 15:04:05"))
			}
			if n := len(session.Errors()); n > 0 {
				printField("Errors:", fmt.Sprintf("%d recorded", n))
			}

			if top := collector.TopDomains(session.TopDomains, 5); len(top) > 0 {
				fmt.Println()
				fmt.Println(tui.TitleStyle.Render("Top Domains"))
				for _, dc := range top {
					fmt.Printf("  %-40s %d\n", dc.Domain, dc.Count)
				}
			}
		}
	}

	indexPath := filepath.Join(cfg.StorageDir, storage.IndexFileName)
	if _, err := os.Stat(indexPath); err == nil {
		db, err := storage.Open(indexPath)
		if err == nil {
			defer db.Close()
			if count, err := storage.NewQueryStorage(db).Count(); err == nil {
				fmt.Println()
				fmt.Println(tui.TitleStyle.Render("Query Index"))
				printField("Records:", fmt.Sprintf("%d", count))
			}
		}
	}

	return nil
}
