package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/dnslogd/internal/collector"
	"github.com/user/dnslogd/internal/util"
)

const queryLine = `{"level":"info","time":"2025-06-01T10:00:00Z","message":"QUERY 192.168.1.5:53422 (udp) -> listener.0: A example.com"}`

func testConfig(t *testing.T) *util.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := util.DefaultConfig()
	cfg.StorageDir = filepath.Join(dir, "dns_logs")
	cfg.LogFilePath = filepath.Join(dir, "ctrld.log")
	cfg.DeviceMapPath = filepath.Join(dir, "device-map.json")
	cfg.IndexEnabled = false
	require.NoError(t, os.WriteFile(cfg.LogFilePath, []byte(queryLine+"\n"), 0644))
	return cfg
}

func TestRunOnce(t *testing.T) {
	cfg := testConfig(t)
	c := collector.New(cfg)
	require.NoError(t, c.Initialize())

	require.NoError(t, RunOnce(context.Background(), c))

	assert.FileExists(t, filepath.Join(cfg.StorageDir, collector.CheckpointFileName))
	assert.FileExists(t, collector.SummaryPath(cfg.StorageDir, time.Now()))
	assert.False(t, c.Running())
}

func TestRunOnce_FailedCycleStillPersists(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(cfg.LogFilePath))
	c := collector.New(cfg)
	require.NoError(t, c.Initialize())

	require.NoError(t, RunOnce(context.Background(), c))
	assert.FileExists(t, filepath.Join(cfg.StorageDir, collector.CheckpointFileName))
}

func TestDaemon_StartStop(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, d.Start())
	assert.True(t, d.IsRunning())
	assert.Error(t, d.Start(), "second start is rejected")

	running, pid := CheckRunning(cfg.PIDFile())
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.Eventually(t, func() bool {
		return d.Collector().Status().Collections >= 1
	}, 5*time.Second, 20*time.Millisecond)

	d.Stop()
	require.NoError(t, d.Wait())

	assert.False(t, d.IsRunning())
	assert.NoFileExists(t, cfg.PIDFile())

	sf, err := ReadStatusFile(cfg.StorageDir)
	require.NoError(t, err)
	assert.False(t, sf.Running)
	assert.Equal(t, 1, sf.Collector.TotalQueries)
}
