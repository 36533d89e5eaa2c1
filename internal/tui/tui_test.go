package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/dnslogd/internal/collector"
	"github.com/user/dnslogd/internal/daemon"
	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/util"
)

func testConfig(t *testing.T) *util.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := util.DefaultConfig()
	cfg.StorageDir = dir
	cfg.DeviceMapPath = filepath.Join(dir, "device-map.json")
	return cfg
}

func writeCheckpoint(t *testing.T, cfg *util.Config) {
	t.Helper()
	s := collector.NewSession(time.Now(), 10)
	s.Observe(&model.QueryRecord{ClientIP: "192.168.1.5", QueryType: "A", Domain: "example.com"})
	s.Observe(&model.QueryRecord{ClientIP: "192.168.1.5", QueryType: "A", Domain: "example.com"})
	s.Observe(&model.QueryRecord{ClientIP: "192.168.1.9", QueryType: "AAAA", Domain: "other.net"})
	s.Collections = 3
	s.LastProcessedPosition = 2048

	data, err := collector.EncodeSession(s)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StorageDir, collector.CheckpointFileName), data, 0644))
}

func TestFetchDashboardData_NoState(t *testing.T) {
	data, err := fetchDashboardData(testConfig(t))
	require.NoError(t, err)
	assert.False(t, data.HasSession)
	assert.False(t, data.DaemonRunning)
}

func TestFetchDashboardData(t *testing.T) {
	cfg := testConfig(t)
	writeCheckpoint(t, cfg)
	require.NoError(t, daemon.WriteStatusFile(cfg.StorageDir, &daemon.DaemonStatus{
		Running:   true,
		PID:       1,
		StartTime: time.Now(),
		Collector: model.CollectorStatus{
			Breaker:      model.BreakerState{IsOpen: true, ConsecutiveFailures: 5},
			BackoffDelay: time.Minute,
			LastError:    "log source unavailable",
		},
	}))

	data, err := fetchDashboardData(cfg)
	require.NoError(t, err)

	assert.True(t, data.HasSession)
	assert.Equal(t, 3, data.TotalQueries)
	assert.Equal(t, int64(2048), data.Position)
	require.Len(t, data.TopDomains, 2)
	assert.Equal(t, "example.com", data.TopDomains[0].Domain)
	assert.Equal(t, []model.TypeCount{{Type: "A", Count: 2}, {Type: "AAAA", Count: 1}}, data.QueryTypes)
	require.Len(t, data.Devices, 2)
	assert.Equal(t, "Unknown-5", data.Devices[0].Name)
	assert.True(t, data.Breaker.IsOpen)
	assert.Equal(t, "log source unavailable", data.LastError)
}

func TestFetchDashboardData_CorruptCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StorageDir, collector.CheckpointFileName), []byte("{"), 0644))

	_, err := fetchDashboardData(cfg)
	assert.ErrorIs(t, err, collector.ErrDecode)
}

func TestDashboardView(t *testing.T) {
	cfg := testConfig(t)
	writeCheckpoint(t, cfg)
	data, err := fetchDashboardData(cfg)
	require.NoError(t, err)

	view := NewDashboard(data, 100, 40).View()
	assert.Contains(t, view, "Collector")
	assert.Contains(t, view, "example.com")
	assert.Contains(t, view, "192.168.1.9")
	assert.Contains(t, view, "2048 bytes")
}

func TestModel_Update(t *testing.T) {
	m := newModel(testConfig(t))

	next, _ := m.Update(dataMsg{Data: &DashboardData{}})
	updated := next.(appModel)
	assert.True(t, updated.ready)
	assert.True(t, strings.Contains(updated.View(), "No session checkpoint yet"))

	_, cmd := updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, 10, len([]rune(stripANSI(RenderBar(5, 10, 10)))))
	assert.Equal(t, 4, len([]rune(stripANSI(RenderBar(0, 0, 4)))))
}

// stripANSI drops escape sequences lipgloss may add.
func stripANSI(s string) string {
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			inEscape = false
		case !inEscape:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func TestRenderBreaker(t *testing.T) {
	closed := stripANSI(RenderBreaker(model.BreakerState{}, 0))
	assert.Contains(t, closed, "closed")

	failing := stripANSI(RenderBreaker(model.BreakerState{ConsecutiveFailures: 2}, 0))
	assert.Contains(t, failing, "2 consecutive failures")

	trip := time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC)
	open := stripANSI(RenderBreaker(model.BreakerState{IsOpen: true, TripTime: trip}, time.Minute))
	assert.Contains(t, open, "open since 10:30:00")
	assert.Contains(t, open, "retry in 1m0s")
}
