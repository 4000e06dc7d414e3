package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/internal/cache"
	"github.com/charlesng35/formdesk/internal/monitoring"
	"github.com/charlesng35/formdesk/internal/services"
	"github.com/charlesng35/formdesk/pkg/logger"
)

// Job names reported to the tracker and in logs.
const (
	JobNotifications  = "field_notifications"
	JobCacheEntries   = "cache_entries"
	JobAuditRetention = "audit_retention"
)

const (
	defaultAuditRetentionDays = 180
	defaultNotificationSpec   = "@hourly"
	defaultCacheSpec          = "@every 10m"
	defaultAuditSpec          = "@daily"
	defaultJobTimeout         = 5 * time.Minute
)

// Cleaner runs the background purge jobs on a cron schedule.
type Cleaner struct {
	notifications *services.FieldNotificationService
	cacheStore    *cache.DatabaseStore
	audit         *services.AuditService
	tracker       *monitoring.JobTracker
	cron          *cron.Cron
	log           *zap.Logger
	retention     int

	notificationSchedule string
	cacheSchedule        string
	auditSchedule        string
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
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

// WithTracker records every job run on tracker.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithCacheStore purges expired rows of the database backed cache.
func WithCacheStore(store *cache.DatabaseStore) Option {
	return func(cleaner *Cleaner) {
		cleaner.cacheStore = store
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSchedules overrides the cron specifications. Empty values keep the defaults.
func WithSchedules(notifications, cacheEntries, audit string) Option {
	return func(cleaner *Cleaner) {
		if notifications != "" {
			cleaner.notificationSchedule = notifications
		}
		if cacheEntries != "" {
			cleaner.cacheSchedule = cacheEntries
		}
		if audit != "" {
			cleaner.auditSchedule = audit
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding job being skipped.
func NewCleaner(notifications *services.FieldNotificationService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		notifications:        notifications,
		audit:                audit,
		retention:            defaultAuditRetentionDays,
		notificationSchedule: defaultNotificationSpec,
		cacheSchedule:        defaultCacheSpec,
		auditSchedule:        defaultAuditSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	if cleaner.tracker != nil {
		for _, j := range cleaner.jobs() {
			cleaner.tracker.Register(j.name)
		}
	}

	return cleaner
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.notifications != nil {
		jobs = append(jobs, job{name: JobNotifications, schedule: c.notificationSchedule, run: c.notifications.PurgeExpired})
	}
	if c.cacheStore != nil {
		jobs = append(jobs, job{name: JobCacheEntries, schedule: c.cacheSchedule, run: c.cacheStore.PurgeExpired})
	}
	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, job{name: JobAuditRetention, schedule: c.auditSchedule, run: func(ctx context.Context) (int64, error) {
			return c.audit.CleanupOlderThan(ctx, c.retention)
		}})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
			defer cancel()
			_ = c.execute(ctx, j)
		}); err != nil {
			return err
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

// RunOnce executes every configured job sequentially and returns the combined errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	removed, err := j.run(ctx)
	if c.tracker != nil {
		c.tracker.Record(j.name, err, time.Since(start))
	}
	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return err
	}
	if removed > 0 {
		c.log.Info("maintenance job removed rows", zap.String("job", j.name), zap.Int64("rows", removed))
	}
	return nil
}
