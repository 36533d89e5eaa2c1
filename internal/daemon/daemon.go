// Package daemon runs the collector as a long-lived background service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/user/dnslogd/internal/collector"
	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/util"
)

// Daemon manages the background service.
type Daemon struct {
	config    *util.Config
	collector *collector.Collector
	scheduler *Scheduler
	pidFile   string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	startTime time.Time
	stopOnce  sync.Once
	stopErr   error
	mu        sync.RWMutex
}

// New creates a daemon around an initialized collector.
func New(cfg *util.Config) (*Daemon, error) {
	c := collector.New(cfg)
	if err := c.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize collector: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:    cfg,
		collector: c,
		scheduler: NewScheduler(),
		pidFile:   cfg.PIDFile(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start registers the jobs and starts the scheduler loop.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	util.Info("Daemon starting...")

	d.registerJobs()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run(d.ctx, d.writeStatus)
	}()

	go d.handleSignals()

	util.Info("Daemon started with PID %d", os.Getpid())
	return nil
}

// Wait blocks until the scheduler exits, then persists collector state.
func (d *Daemon) Wait() error {
	d.wg.Wait()
	return d.shutdown()
}

// Stop asks the scheduler to exit. Wait performs the actual shutdown.
func (d *Daemon) Stop() {
	d.cancel()
}

func (d *Daemon) shutdown() error {
	d.stopOnce.Do(func() {
		util.Info("Daemon stopping...")

		d.mu.Lock()
		d.running = false
		d.mu.Unlock()

		d.stopErr = d.collector.Stop()
		d.writeStatus()
		d.removePIDFile()

		if d.stopErr != nil {
			util.Error("Shutdown incomplete: %v", d.stopErr)
		} else {
			util.Info("Daemon stopped gracefully")
		}
	})
	return d.stopErr
}

func (d *Daemon) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		util.Info("Received signal: %v", sig)
		d.Stop()
	case <-d.ctx.Done():
	}
}

func (d *Daemon) writePIDFile() error {
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

func (d *Daemon) writeStatus() {
	if err := WriteStatusFile(d.config.StorageDir, d.GetStatus()); err != nil {
		util.Warn("Failed to write status file: %v", err)
	}
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &DaemonStatus{
		Running:   d.running,
		PID:       os.Getpid(),
		StartTime: d.startTime,
		Uptime:    time.Since(d.startTime),
		Collector: d.collector.Status(),
		Jobs:      d.scheduler.GetJobStatuses(),
	}
}

// DaemonStatus holds the current daemon status.
type DaemonStatus struct {
	Running   bool
	PID       int
	StartTime time.Time
	Uptime    time.Duration
	Collector model.CollectorStatus
	Jobs      []JobStatus
}

// Collector returns the daemon's collector.
func (d *Daemon) Collector() *collector.Collector {
	return d.collector
}

// RunOnce performs a single collection and persists the result, for
// cron-style scheduling. A failed cycle is logged, not returned.
func RunOnce(ctx context.Context, c *collector.Collector) error {
	if err := c.PerformCollection(ctx); err != nil {
		util.Warn("Collection failed: %v", err)
	}
	return c.Stop()
}
