package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/monitoring"
	"github.com/charlesng35/l2cache/pkg/logger"
)

const (
	defaultPurgeSpec = "@every 10m"
	defaultTimeout   = 2 * time.Minute

	jobPurgeExpired = "cache_purge_expired"
	jobEvictQueries = "query_region_eviction"
)

// ExpiredPurger removes store rows whose lifetime has elapsed.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// QueryEvictor drops every cached query result.
type QueryEvictor interface {
	EvictQueryRegions(ctx context.Context) error
}

// Cleaner coordinates background cache housekeeping: purging expired rows of the database
// store and periodically dropping query result regions.
type Cleaner struct {
	purger  ExpiredPurger
	queries QueryEvictor
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger
	timeout time.Duration

	purgeSchedule string
	querySchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithPurgeSchedule sets the cron expression of the expiry purge. An empty schedule disables it.
func WithPurgeSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		cleaner.purgeSchedule = schedule
	}
}

// WithQueryEvictionSchedule sets the cron expression of query region eviction. An empty schedule
// disables it.
func WithQueryEvictionSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		cleaner.querySchedule = schedule
	}
}

// WithTimeout bounds each job run.
func WithTimeout(timeout time.Duration) Option {
	return func(cleaner *Cleaner) {
		if timeout > 0 {
			cleaner.timeout = timeout
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency results in the corresponding job being skipped.
func NewCleaner(purger ExpiredPurger, queries QueryEvictor, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		purger:        purger,
		queries:       queries,
		now:           time.Now,
		timeout:       defaultTimeout,
		purgeSchedule: defaultPurgeSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) purgeEnabled() bool { return c.purger != nil && c.purgeSchedule != "" }

func (c *Cleaner) queryEnabled() bool { return c.queries != nil && c.querySchedule != "" }

// Jobs lists the names of the jobs Start schedules.
func (c *Cleaner) Jobs() []string {
	var jobs []string
	if c.purgeEnabled() {
		jobs = append(jobs, jobPurgeExpired)
	}
	if c.queryEnabled() {
		jobs = append(jobs, jobEvictQueries)
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.purgeEnabled() && !c.queryEnabled() {
		return nil
	}

	if c.purgeEnabled() {
		if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
			if err := c.run(jobPurgeExpired, c.purgeExpired); err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", jobPurgeExpired, err)
		}
	}

	if c.queryEnabled() {
		if _, err := c.cron.AddFunc(c.querySchedule, func() {
			if err := c.run(jobEvictQueries, c.evictQueries); err != nil {
				c.log.Warn("query region eviction failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", jobEvictQueries, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially, regardless of schedule.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.purger != nil {
		errs = multierr.Append(errs, c.runWith(ctx, jobPurgeExpired, c.purgeExpired))
	}

	if c.queries != nil {
		errs = multierr.Append(errs, c.runWith(ctx, jobEvictQueries, c.evictQueries))
	}

	return errs
}

func (c *Cleaner) run(job string, fn func(context.Context) error) error {
	return c.runWith(context.Background(), job, fn)
}

func (c *Cleaner) runWith(ctx context.Context, job string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		monitoring.RecordMaintenanceRun(job, "failure", err.Error(), duration)
		return fmt.Errorf("maintenance: %s: %w", job, err)
	}
	monitoring.RecordMaintenanceRun(job, "success", "", duration)
	return nil
}

func (c *Cleaner) purgeExpired(ctx context.Context) error {
	removed, err := c.purger.PurgeExpired(ctx, c.now())
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("purged expired cache entries", zap.Int64("removed", removed))
	}
	return nil
}

func (c *Cleaner) evictQueries(ctx context.Context) error {
	if err := c.queries.EvictQueryRegions(ctx); err != nil {
		return err
	}
	c.log.Debug("query regions evicted")
	return nil
}
