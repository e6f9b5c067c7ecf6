package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/metrics"
)

// jobSource hands out claimed jobs, one per call, nil when nothing is
// eligible.
type jobSource interface {
	NextJob(ctx context.Context, workerID string, now time.Time) (*domain.Job, error)
}

type jobExecutor interface {
	Execute(ctx context.Context, job *domain.Job)
}

const (
	claimBackoffMin = time.Second
	claimBackoffMax = 30 * time.Second
)

// Pool runs a fixed set of worker goroutines that claim and execute jobs
// until shutdown.
type Pool struct {
	source       jobSource
	executor     jobExecutor
	logger       *slog.Logger
	size         int
	pollInterval time.Duration
	grace        time.Duration
	instanceID   string
}

func NewPool(
	source jobSource,
	executor jobExecutor,
	logger *slog.Logger,
	size int,
	pollInterval time.Duration,
	grace time.Duration,
) *Pool {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	return &Pool{
		source:       source,
		executor:     executor,
		logger:       logger.With("component", "pool", "instance", id),
		size:         size,
		pollInterval: pollInterval,
		grace:        grace,
		instanceID:   id,
	}
}

// Run blocks until ctx is cancelled and the drain completes. In-flight jobs
// get the grace period to finish; whatever still runs afterwards is
// hard-cancelled and requeued by the executor.
func (p *Pool) Run(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()

	execCtx, cancelExec := context.WithCancel(context.Background())
	defer cancelExec()

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.workerLoop(ctx, execCtx, n)
		}(i)
	}
	p.logger.Info("worker pool started", "workers", p.size)

	<-ctx.Done()
	p.logger.Info("draining worker pool", "grace", p.grace)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool drained")
	case <-time.After(p.grace):
		p.logger.Warn("grace period expired, cancelling executions")
		cancelExec()
		<-done
	}

	metrics.WorkerShutdownsTotal.Inc()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) workerLoop(claimCtx, execCtx context.Context, n int) {
	workerID := fmt.Sprintf("%s-w%d", p.instanceID, n)
	logger := p.logger.With("worker_id", workerID)
	backoff := claimBackoffMin

	for {
		if claimCtx.Err() != nil {
			return
		}

		now := time.Now()
		job, err := p.source.NextJob(claimCtx, workerID, now)
		if err != nil {
			if claimCtx.Err() != nil {
				return
			}
			logger.Error("claim next job", "error", err)
			sleep(claimCtx, backoff)
			backoff = min(backoff*2, claimBackoffMax)
			continue
		}
		backoff = claimBackoffMin

		if job == nil {
			sleep(claimCtx, p.pollInterval)
			continue
		}

		metrics.JobPickupLatency.Observe(now.Sub(job.ScheduledAt).Seconds())
		metrics.JobsInFlight.Inc()
		p.executor.Execute(execCtx, job)
		metrics.JobsInFlight.Dec()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
