package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/cadence/internal/store"
)

// Janitor deletes read notifications older than the retention period on a
// cron schedule. Unread notifications are never removed since they back the
// reminder deduplication.
type Janitor struct {
	cron          *cron.Cron
	notifications *store.NotificationStore
	retention     time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewJanitor schedules the cleanup job. spec is a standard five field cron
// expression evaluated in loc.
func NewJanitor(notifications *store.NotificationStore, spec string, retentionDays int, loc *time.Location, logger *slog.Logger) (*Janitor, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention must be at least one day, got %d", retentionDays)
	}
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger: logger}
	j := &Janitor{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		notifications: notifications,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		logger:        logger,
		now:           time.Now,
	}

	if _, err := j.cron.AddFunc(spec, j.run); err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", spec, err)
	}
	return j, nil
}

// jobTimeout bounds a single run of a job added with Schedule.
const jobTimeout = 30 * time.Minute

// Schedule adds another maintenance job to the janitor's cron. Failures are
// logged under name. It must be called before Start.
func (j *Janitor) Schedule(spec, name string, job func(context.Context) error) error {
	_, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := j.now()
		if err := job(ctx); err != nil {
			j.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		j.logger.Info("scheduled job finished", "job", name, "duration", j.now().Sub(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running cleanup to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// NextRun reports when the next job is due, or the zero time when the
// janitor is not running.
func (j *Janitor) NextRun() time.Time {
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce performs a cleanup immediately and returns how many notifications
// were deleted.
func (j *Janitor) RunOnce() (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.notifications.DeleteReadBefore(cutoff)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (j *Janitor) run() {
	n, err := j.RunOnce()
	if err != nil {
		j.logger.Error("notification cleanup", "error", err)
		return
	}
	j.logger.Info("notification cleanup", "deleted", n)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
