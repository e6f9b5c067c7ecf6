package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/metrics"
)

// outcomeStore is the slice of the job repository the executor writes
// through.
type outcomeStore interface {
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID string, lastError string) error
	Reschedule(ctx context.Context, jobID string, lastError string, retryAt time.Time) error
	Requeue(ctx context.Context, jobID string, reason string) error
}

// refPublisher republishes a ref to the fast tier after a retry is
// scheduled.
type refPublisher interface {
	Requeue(ctx context.Context, id string, priority int, at time.Time)
}

// Executor runs one claimed job to an outcome: succeeded, failed, or
// rescheduled for retry.
type Executor struct {
	store       outcomeStore
	refs        refPublisher
	registry    *Registry
	logger      *slog.Logger
	timeout     time.Duration
	backoffBase float64
}

func NewExecutor(
	store outcomeStore,
	refs refPublisher,
	registry *Registry,
	logger *slog.Logger,
	timeout time.Duration,
	backoffBase float64,
) *Executor {
	return &Executor{
		store:       store,
		refs:        refs,
		registry:    registry,
		logger:      logger,
		timeout:     timeout,
		backoffBase: backoffBase,
	}
}

// Execute runs the job and records its outcome. ctx is the execution
// context: cancelling it signals a shutdown interruption, which hands the
// job back to the queue without consuming the attempt.
func (e *Executor) Execute(ctx context.Context, job *domain.Job) {
	logger := e.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts)

	handler, ok := e.registry.Get(job.Type)
	if !ok {
		// Terminal straight away: retrying cannot fix a type nobody
		// handles, so this bypasses the retry ladder.
		msg := "unknown job type: " + job.Type
		if err := e.store.Fail(ctx, job.ID, msg); err != nil {
			logger.Error("mark job failed", "error", err)
		}
		metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
		logger.Warn("job failed", "error", msg)
		return
	}

	logger.Info("executing job")
	start := time.Now()
	result, runErr := e.run(ctx, handler, job.Payload)
	duration := time.Since(start)

	if runErr == nil {
		metrics.JobExecutionDuration.WithLabelValues("success").Observe(duration.Seconds())
		metrics.JobsCompletedTotal.WithLabelValues("succeeded").Inc()
		if err := e.store.Complete(ctx, job.ID, result); err != nil {
			logger.Error("mark job complete", "error", err)
		}
		logger.Info("job completed", "duration", duration)
		return
	}

	metrics.JobExecutionDuration.WithLabelValues("failure").Observe(duration.Seconds())

	// A cancelled execution context means the process is draining, not that
	// the job is bad. Hand the row back without burning the attempt; the
	// write needs its own context because ctx is already dead.
	if ctx.Err() != nil {
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.store.Requeue(writeCtx, job.ID, "interrupted by shutdown"); err != nil {
			// Row stays running; the reaper will recover it.
			logger.Error("requeue interrupted job", "error", err)
			return
		}
		metrics.JobsCompletedTotal.WithLabelValues("requeued").Inc()
		logger.Warn("job interrupted by shutdown, requeued")
		return
	}

	if errors.Is(runErr, context.DeadlineExceeded) {
		runErr = fmt.Errorf("timeout after %ds", int(e.timeout.Seconds()))
	}
	errMsg := runErr.Error()

	if job.Attempts <= job.MaxRetries {
		retryAt := NextRetry(job.Attempts, e.backoffBase, time.Now())
		if err := e.store.Reschedule(ctx, job.ID, errMsg, retryAt); err != nil {
			logger.Error("reschedule job", "error", err)
			return
		}
		e.refs.Requeue(ctx, job.ID, job.Priority, retryAt)
		metrics.JobsCompletedTotal.WithLabelValues("retrying").Inc()
		logger.Warn("job failed, will retry",
			"error", errMsg,
			"max_retries", job.MaxRetries,
			"retry_at", retryAt,
		)
	} else {
		if err := e.store.Fail(ctx, job.ID, errMsg); err != nil {
			logger.Error("mark job failed", "error", err)
		}
		metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
		logger.Warn("job permanently failed", "error", errMsg, "attempts", job.Attempts)
	}
}

// run executes the handler under the per-job timeout, converting panics
// into ordinary failures.
func (e *Executor) run(ctx context.Context, h Handler, payload json.RawMessage) (result json.RawMessage, err error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(runCtx, payload)
}
