package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/dnslogd/internal/model"
)

const (
	maxDomains = 10
	maxTypes   = 6
	maxDevices = 10
)

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	DaemonRunning bool
	PID           int
	Uptime        string
	UpdatedAt     time.Time

	HasSession     bool
	SessionID      string
	StartTime      time.Time
	Collections    int
	TotalQueries   int
	Position       int64
	LastCollection time.Time
	ErrorCount     int

	Breaker      model.BreakerState
	BackoffDelay time.Duration
	LastError    string

	TopDomains []model.DomainCount
	QueryTypes []model.TypeCount
	Devices    []DeviceInfo
}

// DeviceInfo represents a client device for display.
type DeviceInfo struct {
	IP        string
	Name      string
	Category  string
	Confirmed bool
}

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *DashboardData
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(data *DashboardData, width, height int) *Dashboard {
	return &Dashboard{
		data:   data,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

func (d *Dashboard) sectionWidth() int {
	if w := d.width - 4; w >= 40 {
		return w
	}
	return 40
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Width(d.width).Render("dnslogd"))
	sb.WriteString("\n\n")

	sb.WriteString(d.renderCollectorSection())
	sb.WriteString("\n")

	if d.data.HasSession {
		sb.WriteString(d.renderDomainsSection())
		sb.WriteString("\n")
		sb.WriteString(d.renderDevicesSection())
		sb.WriteString("\n")
	}

	sb.WriteString(HelpStyle.Render("Press 'r' to refresh • 'q' to quit"))

	return sb.String()
}

func (d *Dashboard) renderCollectorSection() string {
	data := d.data

	daemonState := RenderStatus(data.DaemonRunning, fmt.Sprintf("running (PID %d, up %s)", data.PID, data.Uptime), "stopped")
	breaker := RenderBreaker(data.Breaker, data.BackoffDelay)

	lines := []string{
		row("Daemon:", daemonState),
		row("Breaker:", breaker),
	}

	if !data.HasSession {
		lines = append(lines, DimStyle.Render("No session checkpoint yet"))
	} else {
		lines = append(lines,
			row("Session:", ValueStyle.Render(shortID(data.SessionID))),
			row("Collections:", ValueStyle.Render(fmt.Sprintf("%d", data.Collections))),
			row("Queries:", ValueStyle.Render(fmt.Sprintf("%d", data.TotalQueries))),
			row("Devices:", ValueStyle.Render(fmt.Sprintf("%d", len(data.Devices)))),
			row("Offset:", ValueStyle.Render(fmt.Sprintf("%d bytes", data.Position))),
			row("Last Run:", ValueStyle.Render(formatTime(data.LastCollection))),
		)
	}

	if data.ErrorCount > 0 {
		lines = append(lines, row("Errors:", WarningStyle.Render(fmt.Sprintf("%d recorded", data.ErrorCount))))
	}
	if data.LastError != "" {
		lines = append(lines, row("Last Error:", ErrorStyle.Render(data.LastError)))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Collector") + "\n" + strings.Join(lines, "\n"))
}

func (d *Dashboard) renderDomainsSection() string {
	if len(d.data.TopDomains) == 0 {
		return SectionStyle.Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("Top Domains") + "\n" + DimStyle.Render("No queries collected yet"))
	}

	top := d.data.TopDomains[0].Count
	var rows []string
	for _, dc := range d.data.TopDomains {
		domain := dc.Domain
		if len(domain) > 32 {
			domain = domain[:29] + "..."
		}
		rows = append(rows, fmt.Sprintf("%-32s %s %d", domain, RenderBar(dc.Count, top, 20), dc.Count))
	}

	if len(d.data.QueryTypes) > 0 {
		var types []string
		for _, t := range d.data.QueryTypes {
			types = append(types, RenderQueryType(t.Type)+" "+DimStyle.Render(fmt.Sprintf("%d", t.Count)))
		}
		rows = append(rows, "", DimStyle.Render("Types: ")+strings.Join(types, DimStyle.Render(" · ")))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Top Domains") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderDevicesSection() string {
	devices := d.data.Devices
	if len(devices) == 0 {
		return SectionStyle.Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("Devices") + "\n" + DimStyle.Render("No devices seen yet"))
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-16s %-24s %s", "IP", "Name", "Category"))
	rows = append(rows, strings.Repeat("─", 50))

	shown := devices
	if len(shown) > maxDevices {
		shown = shown[:maxDevices]
	}
	for _, dev := range shown {
		name := dev.Name
		if len(name) > 22 {
			name = name[:19] + "..."
		}
		line := fmt.Sprintf("%-16s %-24s %s", dev.IP, name, dev.Category)
		if !dev.Confirmed {
			line = DimStyle.Render(line)
		}
		rows = append(rows, line)
	}

	if len(devices) > maxDevices {
		rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(devices)-maxDevices)))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Devices") + "\n" + strings.Join(rows, "\n"))
}

func row(label, value string) string {
	return LabelStyle.Render(label) + " " + value
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}
