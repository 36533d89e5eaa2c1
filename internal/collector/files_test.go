package collector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/dnslogd/internal/model"
)

func TestShardAndSummaryPaths(t *testing.T) {
	day := time.Date(2025, 6, 1, 23, 59, 0, 0, time.Local)
	assert.Equal(t, filepath.Join("out", "dns-logs-2025-06-01.jsonl"), ShardPath("out", day))
	assert.Equal(t, filepath.Join("out", "summary-2025-06-01.json"), SummaryPath("out", day))
}

func TestAppendShard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns-logs-2025-06-01.jsonl")

	require.NoError(t, AppendShard(path, []model.QueryRecord{{ClientIP: "10.0.0.1", Domain: "a.com"}}))
	require.NoError(t, AppendShard(path, []model.QueryRecord{{ClientIP: "10.0.0.2", Domain: "b.com"}}))
	require.NoError(t, AppendShard(path, nil))

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var rec model.QueryRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "b.com", rec.Domain)
}

func TestAppendShard_UnwritableDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "shard.jsonl")
	err := AppendShard(path, []model.QueryRecord{{Domain: "a.com"}})
	assert.ErrorIs(t, err, ErrPersist)
}

func TestTopDomains_OrderAndLimit(t *testing.T) {
	counts := map[string]int{}
	for i := 0; i < 25; i++ {
		counts[fmt.Sprintf("d%02d.com", i)] = i % 5
	}
	counts["top.com"] = 100

	top := TopDomains(counts, 20)
	require.Len(t, top, 20)
	assert.Equal(t, model.DomainCount{Domain: "top.com", Count: 100}, top[0])
	for i := 1; i < len(top); i++ {
		prev, cur := top[i-1], top[i]
		assert.True(t, prev.Count > cur.Count || (prev.Count == cur.Count && prev.Domain < cur.Domain),
			"entries %d and %d out of order", i-1, i)
	}
}

func TestBuildSummary(t *testing.T) {
	s := NewSession(epoch, 10)
	s.Observe(&model.QueryRecord{ClientIP: "192.168.1.5", QueryType: "A", Domain: "example.com"})
	s.Observe(&model.QueryRecord{ClientIP: "192.168.1.77", QueryType: "A", Domain: "example.com"})
	s.Collections = 2

	devices := staticResolver{"192.168.1.5": {Name: "Laptop", Confirmed: true}}
	summary := BuildSummary(s, devices, epoch)

	assert.Equal(t, 2, summary.Session.TotalQueries)
	assert.Equal(t, 2, summary.Session.UniqueDevices)
	assert.Equal(t, "Laptop", summary.TopDevices["192.168.1.5"].Name)
	assert.Equal(t, "Unknown-77", summary.TopDevices["192.168.1.77"].Name)
	assert.Equal(t, []model.DomainCount{{Domain: "example.com", Count: 2}}, summary.TopDomains)
	assert.Equal(t, map[string]int{"A": 2}, summary.QueryTypeDistribution)

	dir := t.TempDir()
	path, err := WriteSummary(dir, summary)
	require.NoError(t, err)
	assert.Equal(t, SummaryPath(dir, epoch), path)

	var onDisk model.DailySummary
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, summary.Session.SessionID, onDisk.Session.SessionID)
}

func TestRemoveExpired(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-31 * 24 * time.Hour)
	young := now.Add(-29 * 24 * time.Hour)

	files := map[string]time.Time{
		"dns-logs-2025-01-01.jsonl": old,
		"summary-2025-01-01.json":   old,
		"dns-logs-2025-02-01.jsonl": young,
		"notes.txt":                 old,
		CheckpointFileName:          old,
	}
	for name, mtime := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	removed, err := RemoveExpired(dir, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dns-logs-2025-01-01.jsonl", "summary-2025-01-01.json"}, removed)

	assert.NoFileExists(t, filepath.Join(dir, "dns-logs-2025-01-01.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "dns-logs-2025-02-01.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.FileExists(t, filepath.Join(dir, CheckpointFileName))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}
