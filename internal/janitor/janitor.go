// Package janitor periodically removes stale session files and expired jobs.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a pass every ten minutes.
const DefaultSchedule = "@every 10m"

// SessionSweeper removes session files older than maxAge.
type SessionSweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// JobPurger removes finished jobs older than retention.
type JobPurger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int, error)
}

// Config controls what a pass removes.
type Config struct {
	// Schedule is a five-field cron expression or a descriptor such as
	// "@every 10m".
	Schedule string
	// SessionMaxAge is the age after which a session file is stale.
	SessionMaxAge time.Duration
	// JobRetention is how long a finished job stays queryable.
	JobRetention time.Duration
}

// Janitor runs cleanup passes on a cron schedule.
type Janitor struct {
	cron     *cron.Cron
	sessions SessionSweeper
	jobs     JobPurger
	cfg      Config
	logger   *slog.Logger
}

// New creates a Janitor. It returns an error if the schedule does not parse.
func New(cfg Config, sessions SessionSweeper, jobs JobPurger, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	j := &Janitor{
		cron:     c,
		sessions: sessions,
		jobs:     jobs,
		cfg:      cfg,
		logger:   logger,
	}
	if _, err := c.AddFunc(cfg.Schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Start begins running passes in the background.
func (j *Janitor) Start() {
	j.logger.Info("janitor started", slog.String("schedule", j.cfg.Schedule))
	j.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish or ctx
// to end.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Result counts what one pass removed.
type Result struct {
	Sessions int
	Jobs     int
}

// RunOnce runs a single cleanup pass. Failures are logged; a failed step
// does not stop the other.
func (j *Janitor) RunOnce(ctx context.Context) Result {
	var res Result

	if j.sessions != nil && j.cfg.SessionMaxAge > 0 {
		n, err := j.sessions.Sweep(ctx, j.cfg.SessionMaxAge)
		if err != nil {
			j.logger.Warn("session sweep failed", slog.String("error", err.Error()))
		}
		res.Sessions = n
	}

	if j.jobs != nil && j.cfg.JobRetention > 0 {
		n, err := j.jobs.PurgeExpired(ctx, j.cfg.JobRetention)
		if err != nil {
			j.logger.Warn("job purge failed", slog.String("error", err.Error()))
		}
		res.Jobs = n
	}

	if res.Sessions > 0 || res.Jobs > 0 {
		j.logger.Info("janitor pass",
			slog.Int("sessions_removed", res.Sessions),
			slog.Int("jobs_removed", res.Jobs),
		)
	}
	return res
}
