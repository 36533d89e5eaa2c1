package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/util"
)

// StatusFileName is written to the storage directory after every
// scheduler pass.
const StatusFileName = "status.json"

// ErrNotRunning is returned when no live daemon owns the PID file.
var ErrNotRunning = errors.New("daemon is not running")

// CheckRunning reports whether the process recorded in pidFile is alive.
func CheckRunning(pidFile string) (bool, int) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	if !processAlive(pid) {
		return false, 0
	}
	return true, pid
}

// SendStop asks the running daemon to shut down.
func SendStop(pidFile string) error {
	running, pid := CheckRunning(pidFile)
	if !running {
		return ErrNotRunning
	}

	if err := terminate(pid); err != nil {
		return fmt.Errorf("failed to signal PID %d: %w", pid, err)
	}
	return nil
}

// WaitStopped polls until the daemon has exited or timeout passes.
func WaitStopped(pidFile string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if running, _ := CheckRunning(pidFile); !running {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	running, _ := CheckRunning(pidFile)
	return !running
}

// StatusFile holds serialized daemon status.
type StatusFile struct {
	Running   bool                  `json:"running"`
	PID       int                   `json:"pid"`
	StartTime string                `json:"start_time"`
	Uptime    string                `json:"uptime"`
	UpdatedAt time.Time             `json:"updated_at"`
	Collector model.CollectorStatus `json:"collector"`
	Jobs      []JobStatus           `json:"jobs"`
}

// WriteStatusFile writes the daemon status to the storage directory.
func WriteStatusFile(dir string, status *DaemonStatus) error {
	sf := StatusFile{
		Running:   status.Running,
		PID:       status.PID,
		StartTime: status.StartTime.Format("2006-01-02 15:04:05"),
		Uptime:    status.Uptime.Round(time.Second).String(),
		UpdatedAt: time.Now(),
		Collector: status.Collector,
		Jobs:      status.Jobs,
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(filepath.Join(dir, StatusFileName), data)
}

// ReadStatusFile reads the daemon status from the storage directory.
func ReadStatusFile(dir string) (*StatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, StatusFileName))
	if err != nil {
		return nil, err
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}
	return &sf, nil
}
