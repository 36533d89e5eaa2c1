// Package devicemap manages the IP to device identity lookup table.
package devicemap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/querylog"
	"github.com/user/dnslogd/internal/util"
)

const (
	defaultNetworkRange = "192.168.1.0/24"
	defaultSource       = "Control D DNS log analysis"

	maxCommonDomains  = 5
	maxRoutingDomains = 3
)

// Metadata describes the device map file.
type Metadata struct {
	LastUpdated  string `json:"last_updated"`
	NetworkRange string `json:"network_range"`
	TotalDevices int    `json:"total_devices"`
	Source       string `json:"source"`
}

// File is the on-disk device map.
type File struct {
	Metadata Metadata                `json:"metadata"`
	Devices  map[string]model.Device `json:"devices"`
}

// Map is a loaded device map. Lookups are safe for concurrent use.
type Map struct {
	path string
	now  func() time.Time

	mu   sync.RWMutex
	data File
}

// Entry is a device paired with its IP, used for listings.
type Entry struct {
	IP     string
	Device model.Device
}

// New returns an empty map bound to path.
func New(path string) *Map {
	m := &Map{path: path, now: time.Now}
	m.data = m.emptyFile()
	return m
}

// Load reads the device map at path. A missing file or a decode failure is
// returned as an error; callers that want degraded behavior use LoadOrEmpty.
func Load(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device map: %w", err)
	}

	m := New(path)
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse device map %s: %w", path, err)
	}
	if f.Devices == nil {
		f.Devices = make(map[string]model.Device)
	}
	if f.Metadata.NetworkRange == "" {
		f.Metadata.NetworkRange = defaultNetworkRange
	}
	m.data = f
	return m, nil
}

// LoadOrEmpty loads the device map, falling back to an empty one. The load
// error, if any, is returned alongside so it can be logged.
func LoadOrEmpty(path string) (*Map, error) {
	m, err := Load(path)
	if err != nil {
		return New(path), err
	}
	return m, nil
}

func (m *Map) emptyFile() File {
	return File{
		Metadata: Metadata{
			LastUpdated:  m.now().Format("2006-01-02"),
			NetworkRange: defaultNetworkRange,
			Source:       defaultSource,
		},
		Devices: make(map[string]model.Device),
	}
}

// Path returns the file this map was loaded from.
func (m *Map) Path() string {
	return m.path
}

// Len returns the number of mapped devices.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data.Devices)
}

// Lookup returns the identity for ip, synthesizing a placeholder for
// unmapped addresses.
func (m *Map) Lookup(ip string) model.DeviceIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.data.Devices[ip]; ok {
		return d.Identity()
	}
	return querylog.UnknownDevice(ip)
}

// Get returns the raw device entry for ip.
func (m *Map) Get(ip string) (model.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data.Devices[ip]
	return d, ok
}

// Add inserts or replaces a device.
func (m *Map) Add(ip, name, deviceType, category, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Devices[ip] = model.Device{
		Name:        name,
		Type:        deviceType,
		Category:    category,
		Confirmed:   true,
		Description: description,
		Added:       m.now().Format("2006-01-02 15:04:05"),
	}
}

// List returns all devices sorted by IP.
func (m *Map) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.data.Devices))
	for ip, d := range m.data.Devices {
		entries = append(entries, Entry{IP: ip, Device: d})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IP < entries[j].IP })
	return entries
}

// Save writes the map back to its file, refreshing the metadata.
func (m *Map) Save() error {
	m.mu.Lock()
	m.data.Metadata.LastUpdated = m.now().Format("2006-01-02")
	m.data.Metadata.TotalDevices = len(m.data.Devices)
	raw, err := json.MarshalIndent(m.data, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode device map: %w", err)
	}

	if err := util.WriteFileAtomic(m.path, raw); err != nil {
		return fmt.Errorf("failed to write device map: %w", err)
	}
	return nil
}

// AnalyzeLog scans a raw ctrld log and records per-device activity. Known
// devices get their query count and common domains refreshed; unknown
// clients are added as auto-detected devices. It returns the number of
// distinct clients seen.
func (m *Map) AnalyzeLog(logPath string) (int, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	activity := make(map[string]int)
	domains := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec, ok := querylog.ParseLine(scanner.Text(), nil)
		if !ok {
			continue
		}
		activity[rec.ClientIP]++
		if seen[rec.ClientIP] == nil {
			seen[rec.ClientIP] = make(map[string]bool)
		}
		if !seen[rec.ClientIP][rec.Domain] {
			seen[rec.ClientIP][rec.Domain] = true
			domains[rec.ClientIP] = append(domains[rec.ClientIP], rec.Domain)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan log: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for ip, count := range activity {
		common := domains[ip]
		if len(common) > maxCommonDomains {
			common = common[:maxCommonDomains]
		}

		d, ok := m.data.Devices[ip]
		if !ok {
			d = model.Device{
				Name:        "Auto-detected-" + querylog.LastOctet(ip),
				Type:        "Unknown",
				Category:    "Unknown",
				Description: fmt.Sprintf("Auto-detected from DNS logs with %d queries", count),
				Added:       m.now().Format("2006-01-02 15:04:05"),
			}
		}
		d.QueryCount = count
		d.CommonDomains = common
		m.data.Devices[ip] = d
	}

	return len(activity), nil
}

// RoutingTable builds the exported routing table, sorted by IP.
func (m *Map) RoutingTable() []model.RoutingEntry {
	entries := m.List()
	table := make([]model.RoutingEntry, 0, len(entries))
	for _, e := range entries {
		top := e.Device.CommonDomains
		if len(top) > maxRoutingDomains {
			top = top[:maxRoutingDomains]
		}
		if top == nil {
			top = []string{}
		}
		lastSeen := e.Device.Added
		if lastSeen == "" {
			lastSeen = "Unknown"
		}
		table = append(table, model.RoutingEntry{
			IP:         e.IP,
			Name:       orUnknown(e.Device.Name),
			Type:       orUnknown(e.Device.Type),
			Category:   orUnknown(e.Device.Category),
			Activity:   e.Device.QueryCount,
			TopDomains: top,
			LastSeen:   lastSeen,
		})
	}
	return table
}

// RoutingExport is the exported routing table document.
type RoutingExport struct {
	Generated    time.Time            `json:"generated"`
	TotalDevices int                  `json:"total_devices"`
	NetworkRange string               `json:"network_range"`
	RoutingTable []model.RoutingEntry `json:"routing_table"`
}

// ExportRoutingTable writes the routing table to path.
func (m *Map) ExportRoutingTable(path string) error {
	table := m.RoutingTable()

	m.mu.RLock()
	networkRange := m.data.Metadata.NetworkRange
	m.mu.RUnlock()

	raw, err := json.MarshalIndent(RoutingExport{
		Generated:    m.now(),
		TotalDevices: len(table),
		NetworkRange: networkRange,
		RoutingTable: table,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode routing table: %w", err)
	}
	if err := util.WriteFileAtomic(path, raw); err != nil {
		return fmt.Errorf("failed to write routing table: %w", err)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
