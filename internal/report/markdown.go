package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/user/dnslogd/internal/util"
)

const timeFormat = "2006-01-02 15:04"

// FormatMarkdown renders a report as Markdown.
func FormatMarkdown(data *ReportData) string {
	var sb strings.Builder

	sb.WriteString("# DNS Traffic Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", data.GeneratedAt.Format(timeFormat)))
	if !data.Since.IsZero() {
		sb.WriteString(fmt.Sprintf("Period: %s to %s\n\n", data.Since.Format(timeFormat), data.Until.Format(timeFormat)))
	}
	if data.SourceID != "" {
		sb.WriteString(fmt.Sprintf("Source: `%s`\n\n", data.SourceID))
	}
	sb.WriteString(fmt.Sprintf("Total queries: **%d**\n\n", data.TotalQueries))

	if data.TotalQueries == 0 {
		sb.WriteString("_No DNS queries found for this period._\n")
		return sb.String()
	}

	sb.WriteString("## Top Clients\n\n")
	sb.WriteString("| Client | Device | Queries |\n|---|---|---:|\n")
	for _, c := range data.TopClients {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", c.ClientIP, orDash(data.ClientNames[c.ClientIP]), c.Count))
	}
	sb.WriteString("\n")
	sb.WriteString(GenerateClientFlow(data.TopClients, data.ClientNames))
	sb.WriteString("\n")

	sb.WriteString("## Top Domains\n\n")
	sb.WriteString("| # | Domain | Queries |\n|---:|---|---:|\n")
	for i, d := range data.TopDomains {
		sb.WriteString(fmt.Sprintf("| %d | %s | %d |\n", i+1, d.Domain, d.Count))
	}
	sb.WriteString("\n")

	sb.WriteString("## Query Types\n\n")
	sb.WriteString("| Type | Queries | Share |\n|---|---:|---:|\n")
	for _, t := range data.QueryTypes {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.1f%% |\n", t.Type, t.Count, t.Percent))
	}
	sb.WriteString("\n")
	sb.WriteString(GenerateTypePie(data.QueryTypes))
	sb.WriteString("\n")

	sb.WriteString("## Recent Activity\n\n")
	sb.WriteString("| Time | Client | Type | Domain |\n|---|---|---|---|\n")
	for _, r := range data.Recent {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", shortTimestamp(r.Timestamp), r.ClientIP, r.QueryType, r.Domain))
	}

	if ca := data.Client; ca != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("## Client %s", ca.ClientIP))
		if ca.Name != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", ca.Name))
		}
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("Total queries: **%d**\n\n", ca.TotalQueries))

		sb.WriteString("| Domain | Queries |\n|---|---:|\n")
		for _, d := range ca.TopDomains {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", d.Domain, d.Count))
		}
		sb.WriteString("\n| Type | Queries |\n|---|---:|\n")
		for _, t := range ca.QueryTypes {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", t.Type, t.Count))
		}
	}

	return sb.String()
}

// FormatText renders a report as aligned plain text for terminals.
func FormatText(data *ReportData) string {
	var sb strings.Builder
	rule := strings.Repeat("=", 60)

	sb.WriteString(rule + "\nDNS TRAFFIC ANALYSIS REPORT\n" + rule + "\n")
	if data.TotalQueries == 0 {
		sb.WriteString("No DNS queries found to analyze\n")
		return sb.String()
	}

	section := func(title string, rows func(w *tabwriter.Writer)) {
		sb.WriteString("\n" + title + "\n" + strings.Repeat("-", 40) + "\n")
		w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
		rows(w)
		w.Flush()
	}

	section("TOP CLIENTS BY QUERY COUNT:", func(w *tabwriter.Writer) {
		for _, c := range data.TopClients {
			fmt.Fprintf(w, "%s\t%s\t%d queries\n", c.ClientIP, data.ClientNames[c.ClientIP], c.Count)
		}
	})
	section("TOP DOMAINS QUERIED:", func(w *tabwriter.Writer) {
		for _, d := range data.TopDomains {
			fmt.Fprintf(w, "%s\t%d queries\n", d.Domain, d.Count)
		}
	})
	section("QUERY TYPES DISTRIBUTION:", func(w *tabwriter.Writer) {
		for _, t := range data.QueryTypes {
			fmt.Fprintf(w, "%s\t%d queries\t(%.1f%%)\n", t.Type, t.Count, t.Percent)
		}
	})
	section(fmt.Sprintf("RECENT DNS ACTIVITY (Last %d queries):", len(data.Recent)), func(w *tabwriter.Writer) {
		for _, r := range data.Recent {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortTimestamp(r.Timestamp), r.ClientIP, r.QueryType, r.Domain)
		}
	})

	if ca := data.Client; ca != nil {
		if ca.TotalQueries == 0 {
			sb.WriteString(fmt.Sprintf("\nNo queries found for client %s\n", ca.ClientIP))
			return sb.String()
		}
		section(fmt.Sprintf("DETAILED ANALYSIS FOR CLIENT: %s (%d queries)", ca.ClientIP, ca.TotalQueries), func(w *tabwriter.Writer) {
			for _, d := range ca.TopDomains {
				fmt.Fprintf(w, "  %s\t%d queries\n", d.Domain, d.Count)
			}
			for _, t := range ca.QueryTypes {
				fmt.Fprintf(w, "  %s\t%d queries\n", t.Type, t.Count)
			}
		})
	}

	return sb.String()
}

// WriteMarkdownFile writes the report into dir under a timestamped name and
// returns the path.
func WriteMarkdownFile(data *ReportData, dir string) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("dns-report-%s.md", data.GeneratedAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := WriteFile(path, FormatMarkdown(data)); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile writes rendered report content to path.
func WriteFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func shortTimestamp(ts string) string {
	if len(ts) > 19 {
		return ts[:19]
	}
	return ts
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
