package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/dnslogd/internal/model"
)

func TestCheckRunning(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "dnslogd.pid")

	running, _ := CheckRunning(pidFile)
	assert.False(t, running, "missing PID file")

	require.NoError(t, os.WriteFile(pidFile, []byte("garbage"), 0644))
	running, _ = CheckRunning(pidFile)
	assert.False(t, running, "unparsable PID file")

	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))
	running, pid := CheckRunning(pidFile)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestSendStop_NotRunning(t *testing.T) {
	err := SendStop(filepath.Join(t.TempDir(), "dnslogd.pid"))
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStatusFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	status := &DaemonStatus{
		Running:   true,
		PID:       1234,
		StartTime: time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local),
		Uptime:    90 * time.Second,
		Collector: model.CollectorStatus{SessionID: "abc", Collections: 7, TotalQueries: 42},
		Jobs:      []JobStatus{{Name: "collect", Interval: time.Minute}},
	}

	require.NoError(t, WriteStatusFile(dir, status))

	sf, err := ReadStatusFile(dir)
	require.NoError(t, err)
	assert.True(t, sf.Running)
	assert.Equal(t, 1234, sf.PID)
	assert.Equal(t, "2025-06-01 10:00:00", sf.StartTime)
	assert.Equal(t, "1m30s", sf.Uptime)
	assert.Equal(t, 42, sf.Collector.TotalQueries)
	require.Len(t, sf.Jobs, 1)
	assert.Equal(t, "collect", sf.Jobs[0].Name)
}

func TestReadStatusFile_Missing(t *testing.T) {
	_, err := ReadStatusFile(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
