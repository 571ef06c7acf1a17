// Package janitor runs the periodic housekeeping sweeps: expired build
// locks and aged-out transcript events.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/bookbuilder/internal/eventstore"
	"git.home.luguber.info/inful/bookbuilder/internal/locks"
)

// Janitor owns the sweep schedule.
type Janitor struct {
	locks     *locks.Store
	events    eventstore.Store
	lockLimit time.Duration
	maxAge    time.Duration
	interval  time.Duration
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

// New assembles the janitor. lockLimit is the build rate limit; markers
// older than it are abandoned. maxAge bounds transcript retention.
func New(lockStore *locks.Store, events eventstore.Store, interval, lockLimit, maxAge time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		locks:     lockStore,
		events:    events,
		lockLimit: lockLimit,
		maxAge:    maxAge,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the sweeps and begins running them.
func (j *Janitor) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweepLocks),
	)
	if err != nil {
		return fmt.Errorf("schedule lock sweep: %w", err)
	}

	if j.events != nil {
		_, err = scheduler.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.pruneTranscripts),
		)
		if err != nil {
			return fmt.Errorf("schedule transcript prune: %w", err)
		}
	}

	j.scheduler = scheduler
	scheduler.Start()
	j.logger.Info("janitor started", "interval", j.interval)
	return nil
}

// Stop shuts the schedule down, waiting for a running sweep to finish.
func (j *Janitor) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	return j.scheduler.Shutdown()
}

func (j *Janitor) sweepLocks() {
	removed, err := j.locks.SweepExpired(j.lockLimit)
	if err != nil {
		j.logger.Error("lock sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("expired build locks removed", "count", removed)
	}
}

func (j *Janitor) pruneTranscripts() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := j.events.Prune(ctx, time.Now().Add(-j.maxAge))
	if err != nil {
		j.logger.Error("transcript prune failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("aged transcript events pruned", "count", removed)
	}
}
