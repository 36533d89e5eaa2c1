package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/dnslogd/internal/model"
)

var (
	Primary   = lipgloss.Color("99")
	Secondary = lipgloss.Color("86")
	Subtle    = lipgloss.Color("241")
	Success   = lipgloss.Color("46")
	Warning   = lipgloss.Color("214")
	Error     = lipgloss.Color("196")

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(Primary).
			Padding(0, 2).
			Align(lipgloss.Center)

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary)

	SectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 2).
			MarginBottom(1)

	SectionTitleStyle = TitleStyle.MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().Foreground(Subtle).Width(14)
	ValueStyle = lipgloss.NewStyle().Foreground(Secondary).Bold(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)

	DimStyle     = lipgloss.NewStyle().Foreground(Subtle).Italic(true)
	HelpStyle    = lipgloss.NewStyle().Foreground(Subtle).MarginTop(1)
	LoadingStyle = lipgloss.NewStyle().Foreground(Primary).Padding(2, 4)
)

// queryTypeColors tints the common record types in the type breakdown.
var queryTypeColors = map[string]lipgloss.Color{
	"A":     lipgloss.Color("86"),
	"AAAA":  lipgloss.Color("117"),
	"HTTPS": lipgloss.Color("213"),
	"CNAME": lipgloss.Color("228"),
	"PTR":   lipgloss.Color("180"),
}

// RenderStatus returns a styled status indicator.
func RenderStatus(ok bool, okText, failText string) string {
	if ok {
		return SuccessStyle.Render("✓ " + okText)
	}
	return ErrorStyle.Render("✗ " + failText)
}

// RenderBreaker describes the circuit breaker state. A closed breaker with
// recent failures is shown as a warning.
func RenderBreaker(b model.BreakerState, backoff time.Duration) string {
	switch {
	case b.IsOpen && !b.TripTime.IsZero():
		return ErrorStyle.Render(fmt.Sprintf("✗ open since %s, retry in %s", b.TripTime.Format("15:04:05"), backoff))
	case b.IsOpen:
		return ErrorStyle.Render(fmt.Sprintf("✗ open, retry in %s", backoff))
	case b.ConsecutiveFailures > 0:
		return WarningStyle.Render(fmt.Sprintf("! closed, %d consecutive failures", b.ConsecutiveFailures))
	default:
		return SuccessStyle.Render("✓ closed")
	}
}

// RenderQueryType colors a DNS record type name.
func RenderQueryType(qtype string) string {
	color, ok := queryTypeColors[qtype]
	if !ok {
		color = Subtle
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(qtype)
}

// RenderBar renders a horizontal bar of value relative to total.
func RenderBar(value, total int, width int) string {
	if total <= 0 {
		total = 1
	}
	filled := value * width / total
	filled = min(max(filled, 0), width)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(Secondary).Render(bar)
}
