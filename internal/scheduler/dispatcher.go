package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/metrics"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
)

// refPublisher pushes freshly fired jobs to the fast tier so workers see
// them before the next reclaim pass.
type refPublisher interface {
	Requeue(ctx context.Context, id string, priority int, at time.Time)
}

// Dispatcher turns due cron schedules into pending jobs.
type Dispatcher struct {
	scheduleRepo repository.ScheduleRepository
	refs         refPublisher
	logger       *slog.Logger
	interval     time.Duration
}

func NewDispatcher(repo repository.ScheduleRepository, refs refPublisher, logger *slog.Logger, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		scheduleRepo: repo,
		refs:         refs,
		logger:       logger.With("component", "dispatcher"),
		interval:     interval,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shut down")
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	jobs, err := d.scheduleRepo.ClaimAndFire(ctx, 100, d.computeNext)
	if err != nil {
		d.logger.Error("dispatcher claim and fire", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	metrics.SchedulesFiredTotal.Add(float64(len(jobs)))
	for _, j := range jobs {
		d.refs.Requeue(ctx, j.ID, j.Priority, j.ScheduledAt)
	}
	d.logger.Info("dispatcher fired jobs", "count", len(jobs))
}

// computeNext returns the next future run time for the schedule, skipping
// any missed runs.
func (d *Dispatcher) computeNext(s *domain.Schedule) time.Time {
	sched, err := cron.ParseStandard(s.CronExpr)
	if err != nil {
		// Expression was validated on create; this should never happen.
		d.logger.Error("invalid cron expression in schedule", "schedule_id", s.ID, "cron_expr", s.CronExpr, "error", err)
		return time.Now().Add(time.Hour) // safe fallback
	}

	next := sched.Next(s.NextRunAt)
	now := time.Now()
	for next.Before(now) {
		next = sched.Next(next)
	}
	return next
}
