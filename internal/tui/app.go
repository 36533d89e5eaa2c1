// Package tui provides a terminal dashboard over the collector's state
// files.
package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/dnslogd/internal/collector"
	"github.com/user/dnslogd/internal/daemon"
	"github.com/user/dnslogd/internal/devicemap"
	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/util"
)

// refreshInterval is how often the dashboard rereads the state files.
const refreshInterval = 5 * time.Second

// App is the main TUI application.
type App struct {
	config *util.Config
}

// NewApp creates a new TUI application.
func NewApp(cfg *util.Config) *App {
	return &App{config: cfg}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// appModel is the main bubbletea model.
type appModel struct {
	config    *util.Config
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(cfg *util.Config) appModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Primary)

	return appModel{
		config:  cfg,
		spinner: s,
	}
}

// Init initializes the model.
func (m appModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadData(m.config),
	)
}

// Update handles messages.
func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadData(m.config)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case dataMsg:
		m.ready = true
		m.err = nil
		m.dashboard = NewDashboard(msg.Data, m.width, m.height)
		return m, scheduleRefresh()

	case refreshMsg:
		return m, loadData(m.config)

	case errMsg:
		m.err = msg.err
		return m, scheduleRefresh()

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m appModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render("Error: "+m.err.Error()) + "\n" + HelpStyle.Render("Press 'r' to retry • 'q' to quit")
	}

	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Loading...")
	}

	return m.dashboard.View()
}

// Messages
type dataMsg struct {
	Data *DashboardData
}

type refreshMsg struct{}

type errMsg struct {
	err error
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func loadData(cfg *util.Config) tea.Cmd {
	return func() tea.Msg {
		data, err := fetchDashboardData(cfg)
		if err != nil {
			return errMsg{err}
		}
		return dataMsg{Data: data}
	}
}

// fetchDashboardData reads the checkpoint, status file and device map. A
// missing checkpoint means nothing has been collected yet and is not an
// error.
func fetchDashboardData(cfg *util.Config) (*DashboardData, error) {
	data := &DashboardData{}

	if sf, err := daemon.ReadStatusFile(cfg.StorageDir); err == nil {
		running, pid := daemon.CheckRunning(cfg.PIDFile())
		data.DaemonRunning = running
		data.PID = pid
		data.Uptime = sf.Uptime
		data.UpdatedAt = sf.UpdatedAt
		data.Breaker = sf.Collector.Breaker
		data.BackoffDelay = sf.Collector.BackoffDelay
		data.LastError = sf.Collector.LastError
	}

	raw, err := os.ReadFile(filepath.Join(cfg.StorageDir, collector.CheckpointFileName))
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	session, err := collector.DecodeSession(raw, cfg.MaxErrorEntries)
	if err != nil {
		return nil, err
	}

	devices, _ := devicemap.LoadOrEmpty(cfg.DeviceMapPath)

	data.HasSession = true
	data.SessionID = session.ID
	data.StartTime = session.StartTime
	data.Collections = session.Collections
	data.TotalQueries = session.TotalQueries
	data.Position = session.LastProcessedPosition
	data.LastCollection = session.LastCollection
	data.ErrorCount = len(session.Errors())
	data.TopDomains = collector.TopDomains(session.TopDomains, maxDomains)
	for _, tc := range collector.TopDomains(session.QueryTypes, maxTypes) {
		data.QueryTypes = append(data.QueryTypes, model.TypeCount{Type: tc.Domain, Count: tc.Count})
	}
	for _, ip := range session.Devices() {
		id := devices.Lookup(ip)
		data.Devices = append(data.Devices, DeviceInfo{
			IP:        ip,
			Name:      id.Name,
			Category:  id.Category,
			Confirmed: id.Confirmed,
		})
	}

	return data, nil
}
