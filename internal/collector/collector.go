// Package collector tails the ctrld query log, turns new lines into DNS
// query records and keeps the session aggregates, daily shards, checkpoint
// and summary files up to date.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/dnslogd/internal/devicemap"
	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/querylog"
	"github.com/user/dnslogd/internal/storage"
	"github.com/user/dnslogd/internal/util"
)

// Collector runs poll cycles against the ctrld log. All cycle work happens
// under mu, so at most one cycle is ever in flight.
type Collector struct {
	cfg     *util.Config
	log     *util.Logger
	now     func() time.Time
	metrics *Metrics
	breaker *CircuitBreaker
	backoff *Backoff

	mu        sync.Mutex
	session   *Session
	devices   *devicemap.Map
	db        *storage.DB
	index     *storage.QueryStorage
	running   bool
	lastError string
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// WithLogger replaces the default component logger.
func WithLogger(l *util.Logger) Option {
	return func(c *Collector) {
		c.log = l
	}
}

// New creates a collector for cfg. Call Initialize before the first cycle.
func New(cfg *util.Config, opts ...Option) *Collector {
	c := &Collector{
		cfg:     cfg,
		now:     time.Now,
		metrics: NewMetrics(),
		breaker: NewCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown),
		backoff: NewBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffMultiplier),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = util.GetLogger().WithComponent("collector")
	}
	c.session = NewSession(c.now(), cfg.MaxErrorEntries)
	c.devices = devicemap.New(cfg.DeviceMapPath)
	return c
}

// Initialize prepares the storage directory and restores state. Only a
// failure to create the storage directory is fatal.
func (c *Collector) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := util.EnsureDir(c.cfg.StorageDir); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", c.cfg.StorageDir, err)
	}

	c.loadDevices()

	if s, err := c.loadCheckpoint(); err != nil {
		c.log.Warn("Starting fresh session: %v", err)
	} else if s != nil {
		c.session = s
		c.log.Info("Resumed session %s at position %d (%d collections)",
			s.ID, s.LastProcessedPosition, s.Collections)
	} else {
		c.log.Info("Started new session %s", c.session.ID)
	}

	if c.cfg.IndexEnabled {
		db, err := storage.Open(filepath.Join(c.cfg.StorageDir, storage.IndexFileName))
		if err != nil {
			c.log.Warn("Query index disabled: %v", err)
		} else {
			c.db = db
			c.index = storage.NewQueryStorage(db)
		}
	}

	c.running = true
	c.updateGauges()
	return nil
}

func (c *Collector) checkpointPath() string {
	return filepath.Join(c.cfg.StorageDir, CheckpointFileName)
}

// loadCheckpoint returns nil without error when no checkpoint exists.
func (c *Collector) loadCheckpoint() (*Session, error) {
	data, err := os.ReadFile(c.checkpointPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return DecodeSession(data, c.cfg.MaxErrorEntries)
}

// loadDevices swaps in a freshly read device map, degrading to an empty
// one when the file is missing or corrupt.
func (c *Collector) loadDevices() {
	m, err := devicemap.LoadOrEmpty(c.cfg.DeviceMapPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		c.log.Debug("No device map at %s", c.cfg.DeviceMapPath)
	default:
		c.log.Warn("Using empty device map: %v", err)
	}
	c.devices = m
}

// PerformCollection runs one poll cycle. A failed cycle has already been
// routed through the breaker and backoff when the error is returned. A
// cancelled ctx skips the cycle without counting a failure.
func (c *Collector) PerformCollection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.collect(); err != nil {
		c.handleError(err)
		return err
	}

	c.metrics.Collections.Inc()
	c.breaker.RecordSuccess()
	c.backoff.Reset()
	c.updateGauges()
	c.flushMetrics()
	return nil
}

func (c *Collector) collect() error {
	c.loadDevices()

	data, size, err := c.readNew()
	if err != nil {
		return err
	}

	var records []model.QueryRecord
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec, ok := querylog.ParseLine(line, c.devices)
		if !ok {
			continue
		}
		c.session.Observe(rec)
		records = append(records, *rec)
	}
	c.session.LastProcessedPosition = size
	c.metrics.Queries.Add(float64(len(records)))

	now := c.now()
	if len(records) > 0 {
		if err := AppendShard(ShardPath(c.cfg.StorageDir, now), records); err != nil {
			return err
		}
		if c.index != nil {
			if err := c.index.SaveBatch(now, records); err != nil {
				c.log.Warn("Failed to index %d records: %v", len(records), err)
			}
		}
	}

	c.session.Collections++
	c.session.LastCollection = now

	if err := c.writeCheckpoint(); err != nil {
		return err
	}

	c.log.Info("Collection %d: %d new queries (%d total, %d devices)",
		c.session.Collections, len(records), c.session.TotalQueries, len(c.session.UniqueDevices))

	if c.session.Collections%c.cfg.SummaryEvery == 0 {
		if _, err := c.generateSummary(); err != nil {
			return err
		}
	}
	return nil
}

// readNew returns the bytes appended since the last processed position and
// the file length they end at. A file shorter than the stored position was
// truncated or rotated and is read again from the start.
func (c *Collector) readNew() ([]byte, int64, error) {
	f, err := os.Open(c.cfg.LogFilePath)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	size := info.Size()

	offset := c.session.LastProcessedPosition
	if size < offset {
		c.log.Warn("Log source truncated or rotated (size %d < offset %d), reading from start", size, offset)
		c.metrics.SourceResets.Inc()
		offset = 0
	}
	if size == offset {
		return nil, size, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("%w: seek to %d: %w", ErrSourceUnavailable, offset, err)
	}
	data, err := io.ReadAll(io.LimitReader(f, size-offset))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return data, size, nil
}

func (c *Collector) writeCheckpoint() error {
	data, err := EncodeSession(c.session)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(c.checkpointPath(), data); err != nil {
		return fmt.Errorf("%w: write checkpoint: %w", ErrPersist, err)
	}
	return nil
}

// HandleCollectionError records a failed cycle. It never fails itself.
func (c *Collector) HandleCollectionError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleError(err)
}

func (c *Collector) handleError(err error) {
	now := c.now()
	failures, tripped := c.breaker.RecordFailure(now)
	c.session.RecordError(model.ErrorEntry{
		Timestamp:  now,
		Error:      err.Error(),
		Collection: c.session.Collections,
	})
	delay := c.backoff.Fail()
	c.lastError = err.Error()
	c.metrics.Failures.WithLabelValues(failureKind(err)).Inc()

	c.log.Error("Collection failed (%d consecutive): %v", failures, err)
	if tripped {
		c.log.Warn("Circuit breaker opened after %d failures, retrying in %s", failures, delay)
	}

	c.updateGauges()
	c.flushMetrics()
}

// Tick decides and performs the next scheduled action and returns how long
// the caller should wait before calling Tick again. While the breaker is
// open and cooling down no collection happens and the backoff delay is
// returned. Otherwise a cycle runs and the poll interval is returned, or
// the backoff delay if that cycle tripped the breaker.
func (c *Collector) Tick(ctx context.Context) time.Duration {
	if c.breaker.IsOpen() {
		if !c.breaker.CooldownElapsed(c.now()) {
			delay := c.backoff.Current()
			c.log.Debug("Circuit breaker open, next attempt in %s", delay)
			return delay
		}
		c.log.Info("Circuit breaker cooldown elapsed, resuming collection")
		c.breaker.Reset()
	}

	if err := c.PerformCollection(ctx); err != nil && c.breaker.IsOpen() {
		return c.backoff.Current()
	}
	return c.cfg.PollInterval()
}

// GenerateSummary rebuilds and writes today's summary.
func (c *Collector) GenerateSummary() (*model.DailySummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generateSummary()
}

func (c *Collector) generateSummary() (*model.DailySummary, error) {
	summary := BuildSummary(c.session, c.devices, c.now())
	path, err := WriteSummary(c.cfg.StorageDir, summary)
	if err != nil {
		return nil, err
	}
	c.log.Debug("Wrote summary %s", path)
	return summary, nil
}

// CleanupOldLogs removes shard and summary files older than the retention
// window and purges matching index rows. It returns the number of files
// removed.
func (c *Collector) CleanupOldLogs() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.Retention())
	removed, err := RemoveExpired(c.cfg.StorageDir, cutoff)
	for _, name := range removed {
		c.log.Info("Removed expired log %s", name)
	}

	if c.index != nil {
		rows, ierr := c.index.Cleanup(cutoff)
		if ierr != nil {
			err = errors.Join(err, ierr)
		} else if rows > 0 {
			c.log.Info("Purged %d indexed queries older than %s", rows, cutoff.Format(time.DateOnly))
		}
	}

	if err != nil {
		c.log.Error("Log cleanup failed: %v", err)
	}
	return len(removed), err
}

// Stop persists the checkpoint and summary, flushes metrics and closes the
// query index. Calling it again is a no-op.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	var errs []error
	if err := c.writeCheckpoint(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.generateSummary(); err != nil {
		errs = append(errs, err)
	}
	if err := c.flushMetrics(); err != nil {
		errs = append(errs, err)
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
		c.db = nil
		c.index = nil
	}

	c.log.Info("Collector stopped after %d collections (%d queries)", c.session.Collections, c.session.TotalQueries)
	return errors.Join(errs...)
}

// Running reports whether the collector is initialized and not stopped.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns a snapshot of the collector. It is safe to call from any
// goroutine.
func (c *Collector) Status() model.CollectorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return model.CollectorStatus{
		SessionID:             c.session.ID,
		Collections:           c.session.Collections,
		TotalQueries:          c.session.TotalQueries,
		UniqueDevices:         len(c.session.UniqueDevices),
		LastProcessedPosition: c.session.LastProcessedPosition,
		LastCollection:        c.session.LastCollection,
		Breaker:               c.breaker.State(),
		BackoffDelay:          c.backoff.Current(),
		ErrorCount:            len(c.session.errors),
		LastError:             c.lastError,
	}
}

// Metrics returns the collector's metrics.
func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

func (c *Collector) updateGauges() {
	open := 0.0
	if c.breaker.IsOpen() {
		open = 1
	}
	c.metrics.BreakerOpen.Set(open)
	c.metrics.BackoffDelay.Set(c.backoff.Current().Seconds())
	c.metrics.UniqueDevices.Set(float64(len(c.session.UniqueDevices)))
	c.metrics.Position.Set(float64(c.session.LastProcessedPosition))
}

func (c *Collector) flushMetrics() error {
	if c.cfg.MetricsTextfile == "" {
		return nil
	}
	if err := c.metrics.WriteTextfile(c.cfg.MetricsTextfile); err != nil {
		c.log.Warn("Failed to write metrics to %s: %v", c.cfg.MetricsTextfile, err)
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
