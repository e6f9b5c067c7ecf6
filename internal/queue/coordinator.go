package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/metrics"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
)

const (
	// popRetries bounds how many stale fast-tier entries one pickup chews
	// through before falling back to the durable scan.
	popRetries = 4
	// reclaimBatch caps how many ready refs one reclaim pass republishes.
	reclaimBatch = 500
)

// Coordinator owns enqueue and dequeue flow across both tiers. The store is
// the serialization point: every id surfaced by the fast tier goes through
// an atomic claim, so duplicate or stale refs are harmless and fast-tier
// failures only cost latency.
type Coordinator struct {
	repo   repository.JobRepository
	fast   ReadyQueue // nil when the fast tier is disabled
	logger *slog.Logger
}

func NewCoordinator(repo repository.JobRepository, fast ReadyQueue, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		repo:   repo,
		fast:   fast,
		logger: logger.With("component", "coordinator"),
	}
}

// Submit persists the job and publishes it to the fast tier. Submission
// succeeds even when the fast tier is down.
func (c *Coordinator) Submit(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	created, err := c.repo.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	metrics.JobsSubmittedTotal.WithLabelValues(created.Type).Inc()
	c.push(ctx, created.ID, created.Priority, created.ScheduledAt)
	return created, nil
}

// SubmitMany persists the batch in one transaction, then publishes each row
// best-effort.
func (c *Coordinator) SubmitMany(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
	created, err := c.repo.CreateBatch(ctx, jobs)
	if err != nil {
		return nil, err
	}
	for _, j := range created {
		metrics.JobsSubmittedTotal.WithLabelValues(j.Type).Inc()
		c.push(ctx, j.ID, j.Priority, j.ScheduledAt)
	}
	return created, nil
}

// NextJob returns the next claimed job, or nil when nothing is eligible.
// Fast-tier hits are verified through ClaimByID; ids the store rejects
// (already taken, cancelled, rescheduled) are discarded silently.
func (c *Coordinator) NextJob(ctx context.Context, workerID string, now time.Time) (*domain.Job, error) {
	if c.fast != nil {
		for i := 0; i < popRetries; i++ {
			id, err := c.fast.PopReady(ctx, now)
			if err != nil {
				metrics.FastQueueErrorsTotal.WithLabelValues("pop").Inc()
				c.logger.Warn("fast queue pop failed, falling back to store", "error", err)
				break
			}
			if id == "" {
				break
			}
			job, err := c.repo.ClaimByID(ctx, id, workerID, now)
			if err != nil {
				return nil, err
			}
			if job != nil {
				return job, nil
			}
		}
	}
	return c.repo.ClaimNext(ctx, workerID, now)
}

// Requeue republishes a single ref, used after a retry outcome or an
// operator reset.
func (c *Coordinator) Requeue(ctx context.Context, id string, priority int, at time.Time) {
	c.push(ctx, id, priority, at)
}

// Remove drops a cancelled job from the fast tier, best effort. The claim
// guard makes a leftover ref harmless either way.
func (c *Coordinator) Remove(ctx context.Context, id string) {
	if c.fast == nil {
		return
	}
	if err := c.fast.Remove(ctx, id); err != nil {
		metrics.FastQueueErrorsTotal.WithLabelValues("remove").Inc()
		c.logger.Warn("fast queue remove failed", "job_id", id, "error", err)
	}
}

// Depth reports jobs awaiting pickup per tier. Snapshot, not transactional.
type Depth struct {
	Fast         int `json:"fast"`
	DurableReady int `json:"durable_ready"`
}

func (c *Coordinator) Depth(ctx context.Context) (Depth, error) {
	var d Depth
	ready, err := c.repo.CountReady(ctx, time.Now())
	if err != nil {
		return d, err
	}
	d.DurableReady = ready

	if c.fast != nil {
		size, err := c.fast.Size(ctx)
		if err != nil {
			metrics.FastQueueErrorsTotal.WithLabelValues("size").Inc()
			c.logger.Warn("fast queue size failed", "error", err)
		} else {
			d.Fast = size
		}
	}
	return d, nil
}

// ReclaimScan republishes eligible store rows to the fast tier on a fixed
// interval until ctx is cancelled. It heals evictions, restarts, and drift,
// and is what lets the fast tier stay advisory.
func (c *Coordinator) ReclaimScan(ctx context.Context, interval time.Duration) {
	if c.fast == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("reclaim scan started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("reclaim scan stopped")
			return
		case <-ticker.C:
			c.reclaimOnce(ctx)
		}
	}
}

func (c *Coordinator) reclaimOnce(ctx context.Context) {
	refs, err := c.repo.ListReady(ctx, time.Now(), reclaimBatch)
	if err != nil {
		c.logger.Error("reclaim scan list failed", "error", err)
		return
	}
	for _, r := range refs {
		if err := c.fast.Push(ctx, r.ID, r.Priority, r.ScheduledAt); err != nil {
			metrics.FastQueueErrorsTotal.WithLabelValues("push").Inc()
			c.logger.Warn("reclaim push failed", "job_id", r.ID, "error", err)
			return
		}
	}
	c.observeDepth(ctx)
}

func (c *Coordinator) observeDepth(ctx context.Context) {
	d, err := c.Depth(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues("fast").Set(float64(d.Fast))
	metrics.QueueDepth.WithLabelValues("durable").Set(float64(d.DurableReady))
}

func (c *Coordinator) push(ctx context.Context, id string, priority int, at time.Time) {
	if c.fast == nil {
		return
	}
	if err := c.fast.Push(ctx, id, priority, at); err != nil {
		metrics.FastQueueErrorsTotal.WithLabelValues("push").Inc()
		c.logger.Warn("fast queue push failed", "job_id", id, "error", err)
	}
}
