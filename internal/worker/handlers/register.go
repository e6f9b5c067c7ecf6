// Package handlers holds the built-in job types. Each constructor returns a
// worker.Handler closed over its dependencies; Register wires them all into
// a registry.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/email"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
)

func Register(reg *worker.Registry, sender email.Sender, logger *slog.Logger) {
	reg.Register("email", Email(sender, logger))
	reg.Register("ai_task", AITask(logger))
	reg.Register("data_cleaning", DataCleaning(logger))
}

// wait sleeps for d unless ctx ends first, in which case it reports why.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
