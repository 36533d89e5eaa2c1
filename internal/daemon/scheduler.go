package daemon

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/user/dnslogd/internal/util"
)

// Job is a recurring task. Run performs one pass and returns how long to
// wait before the next pass.
type Job struct {
	Name string
	Run  func(ctx context.Context) (time.Duration, error)

	// State
	lastRun    time.Time
	nextRun    time.Time
	lastDelay  time.Duration
	lastError  error
	errorCount int
	running    bool
}

// JobStatus represents the status of a job.
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	LastError  string        `json:"last_error,omitempty"`
	ErrorCount int           `json:"error_count"`
	Running    bool          `json:"running"`
}

// minDelay keeps a job that returns no delay from spinning.
const minDelay = time.Second

// Scheduler runs jobs one at a time on a single goroutine. Each job
// decides its own next delay, so there is no fixed ticker.
type Scheduler struct {
	now  func() time.Time
	mu   sync.RWMutex
	jobs []*Job
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Now}
}

// AddJob adds a job whose first run happens after delay.
func (s *Scheduler) AddJob(job *Job, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.nextRun = s.now().Add(delay)
	s.jobs = append(s.jobs, job)
}

// Run executes due jobs until ctx is cancelled. after, if not nil, is
// called once every pass that ran at least one job.
func (s *Scheduler) Run(ctx context.Context, after func()) {
	util.Info("Scheduler started with %d jobs", len(s.jobs))

	for {
		ran, wait := s.Step(ctx)
		if ran > 0 && after != nil {
			after()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			util.Info("Scheduler stopping")
			return
		case <-timer.C:
		}
	}
}

// Step runs every job that is due, earliest first, and returns how many
// ran and the wait until the next one is due.
func (s *Scheduler) Step(ctx context.Context) (int, time.Duration) {
	ran := 0
	for _, job := range s.due(s.now()) {
		if ctx.Err() != nil {
			break
		}
		s.runJob(ctx, job)
		ran++
	}
	return ran, s.untilNext(s.now())
}

func (s *Scheduler) due(now time.Time) []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*Job
	for _, job := range s.jobs {
		if !job.nextRun.After(now) {
			due = append(due, job)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].nextRun.Before(due[j].nextRun)
	})
	return due
}

func (s *Scheduler) untilNext(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next time.Time
	for _, job := range s.jobs {
		if next.IsZero() || job.nextRun.Before(next) {
			next = job.nextRun
		}
	}
	if next.IsZero() {
		return time.Hour
	}
	if wait := next.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	s.mu.Lock()
	job.running = true
	job.lastRun = s.now()
	s.mu.Unlock()

	util.Debug("Running job: %s", job.Name)
	delay, err := job.Run(ctx)
	if delay < minDelay {
		delay = minDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job.running = false
	job.lastDelay = delay
	job.nextRun = s.now().Add(delay)
	if err != nil {
		job.lastError = err
		job.errorCount++
		util.Warn("Job %s failed: %v", job.Name, err)
	} else {
		job.lastError = nil
	}
}

// GetJobStatuses returns the status of all jobs.
func (s *Scheduler) GetJobStatuses() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		status := JobStatus{
			Name:       job.Name,
			Interval:   job.lastDelay,
			LastRun:    job.lastRun,
			NextRun:    job.nextRun,
			ErrorCount: job.errorCount,
			Running:    job.running,
		}
		if job.lastError != nil {
			status.LastError = job.lastError.Error()
		}
		statuses[i] = status
	}
	return statuses
}
