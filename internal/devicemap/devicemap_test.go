package devicemap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/dnslogd/internal/model"
)

const sampleMap = `{
  "metadata": {"last_updated": "2025-01-01", "network_range": "10.0.0.0/24", "total_devices": 1, "source": "manual"},
  "devices": {
    "10.0.0.5": {"name": "Office-PC", "type": "Computer", "category": "Work", "confirmed": true}
  }
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestLoad_AndLookup(t *testing.T) {
	path := writeFile(t, t.TempDir(), "device-map.json", sampleMap)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	known := m.Lookup("10.0.0.5")
	assert.Equal(t, "Office-PC", known.Name)
	assert.True(t, known.Confirmed)

	unknown := m.Lookup("10.0.0.77")
	assert.Equal(t, "Unknown-77", unknown.Name)
	assert.False(t, unknown.Confirmed)
}

func TestLoadOrEmpty_Degrades(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadOrEmpty(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())

	corrupt := writeFile(t, dir, "corrupt.json", "{not json")
	m, err = LoadOrEmpty(corrupt)
	assert.Error(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Unknown-1", m.Lookup("192.168.1.1").Name)
}

func TestAddSaveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device-map.json")
	m := New(path)
	m.now = fixedClock

	m.Add("192.168.1.100", "Smart TV", "Entertainment", "Media", "Living room TV")
	m.Add("192.168.1.2", "Router", "Network", "Infrastructure", "")
	require.NoError(t, m.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())

	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, "192.168.1.100", list[0].IP, "entries sort by IP string")
	assert.Equal(t, "Smart TV", list[0].Device.Name)
	assert.Equal(t, "2025-06-01 12:00:00", list[0].Device.Added)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var f File
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, 2, f.Metadata.TotalDevices)
	assert.Equal(t, "2025-06-01", f.Metadata.LastUpdated)
}

func TestAnalyzeLog(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "device-map.json", sampleMap)

	lines := []string{
		`{"time":"t1","message":"QUERY 10.0.0.5:1000 (udp) -> listener.0: A a.com"}`,
		`{"time":"t2","message":"QUERY 10.0.0.5:1000 (udp) -> listener.0: AAAA a.com"}`,
		`{"time":"t3","message":"QUERY 10.0.0.5:1000 (udp) -> listener.0: A b.com"}`,
		`{"time":"t4","message":"QUERY 10.0.0.9:1000 (udp) -> listener.0: A c.com"}`,
		`{"time":"t5","message":"upstream ok"}`,
		`garbage`,
	}
	logPath := writeFile(t, dir, "ctrld.log", strings.Join(lines, "\n")+"\n")

	m, err := Load(path)
	require.NoError(t, err)
	m.now = fixedClock

	clients, err := m.AnalyzeLog(logPath)
	require.NoError(t, err)
	assert.Equal(t, 2, clients)

	known, ok := m.Get("10.0.0.5")
	require.True(t, ok)
	assert.Equal(t, "Office-PC", known.Name)
	assert.Equal(t, 3, known.QueryCount)
	assert.Equal(t, []string{"a.com", "b.com"}, known.CommonDomains)

	auto, ok := m.Get("10.0.0.9")
	require.True(t, ok)
	assert.Equal(t, "Auto-detected-9", auto.Name)
	assert.Equal(t, 1, auto.QueryCount)
	assert.False(t, auto.Confirmed)
}

func TestAnalyzeLog_MissingFile(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "device-map.json"))
	_, err := m.AnalyzeLog("/nonexistent/ctrld.log")
	assert.Error(t, err)
}

func TestExportRoutingTable(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, "device-map.json"))
	m.now = fixedClock
	m.data.Devices["10.0.0.3"] = deviceWithDomains("NAS", 12, "a.com", "b.com", "c.com", "d.com")
	m.data.Devices["10.0.0.1"] = deviceWithDomains("", 0)

	out := filepath.Join(dir, "routing.json")
	require.NoError(t, m.ExportRoutingTable(out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var export RoutingExport
	require.NoError(t, json.Unmarshal(raw, &export))
	assert.Equal(t, 2, export.TotalDevices)
	assert.Equal(t, "192.168.1.0/24", export.NetworkRange)
	require.Len(t, export.RoutingTable, 2)

	first := export.RoutingTable[0]
	assert.Equal(t, "10.0.0.1", first.IP)
	assert.Equal(t, "Unknown", first.Name)
	assert.Equal(t, "Unknown", first.LastSeen)
	assert.Empty(t, first.TopDomains)

	second := export.RoutingTable[1]
	assert.Equal(t, 12, second.Activity)
	assert.Equal(t, []string{"a.com", "b.com", "c.com"}, second.TopDomains)
}

func deviceWithDomains(name string, count int, domains ...string) model.Device {
	return model.Device{
		Name:          name,
		Type:          "Storage",
		Category:      "Home",
		QueryCount:    count,
		CommonDomains: domains,
	}
}
