package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/metrics"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
)

// staleMargin is added on top of the job timeout before a running row
// counts as abandoned, so the reaper never races a worker that is still
// legitimately finishing up.
const staleMargin = time.Minute

// Reaper recovers jobs whose worker died mid-execution. A running row older
// than timeout+margin goes back to retrying, or to failed once its retries
// are spent.
type Reaper struct {
	repo       repository.JobRepository
	logger     *slog.Logger
	interval   time.Duration
	jobTimeout time.Duration
}

func NewReaper(repo repository.JobRepository, logger *slog.Logger, interval, jobTimeout time.Duration) *Reaper {
	return &Reaper{
		repo:       repo,
		logger:     logger.With("component", "reaper"),
		interval:   interval,
		jobTimeout: jobTimeout,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "stale_after", r.jobTimeout+staleMargin)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	start := time.Now()
	staleCutoff := start.Add(-(r.jobTimeout + staleMargin))

	rescheduled, err := r.repo.RescheduleStale(ctx, staleCutoff, 100)
	if err != nil {
		r.logger.Error("reschedule stale jobs", "error", err)
	} else if rescheduled > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("rescheduled").Add(float64(rescheduled))
		r.logger.Warn("rescheduled stale jobs", "count", rescheduled)
	}

	failed, err := r.repo.FailStale(ctx, staleCutoff, 100)
	if err != nil {
		r.logger.Error("fail stale jobs", "error", err)
	} else if failed > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("failed").Add(float64(failed))
		r.logger.Warn("permanently failed stale jobs", "count", failed)
	}

	metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds())
}
