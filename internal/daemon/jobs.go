package daemon

import (
	"context"
	"time"
)

// cleanupDelay defers the first retention pass past startup.
const cleanupDelay = time.Minute

// registerJobs registers the collector jobs with the scheduler.
func (d *Daemon) registerJobs() {
	// Collect immediately, then as the breaker and backoff dictate.
	d.scheduler.AddJob(&Job{
		Name: "collect",
		Run:  d.runCollect,
	}, 0)

	d.scheduler.AddJob(&Job{
		Name: "cleanup",
		Run:  d.runCleanup,
	}, cleanupDelay)
}

func (d *Daemon) runCollect(ctx context.Context) (time.Duration, error) {
	return d.collector.Tick(ctx), nil
}

func (d *Daemon) runCleanup(ctx context.Context) (time.Duration, error) {
	_, err := d.collector.CleanupOldLogs()
	return d.config.CleanupInterval, err
}
