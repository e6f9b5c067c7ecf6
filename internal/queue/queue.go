// Package queue layers a fast, advisory ready-index on top of the durable
// job store. Postgres stays the single source of truth: every id surfaced by
// the fast tier is re-verified with an atomic claim, so the index can lose
// entries, hold stale ones, or vanish entirely without affecting
// correctness — only pickup latency.
package queue

import (
	"context"
	"time"
)

// ReadyQueue indexes job ids for fast pickup, ordered by priority (desc)
// then eligibility time (asc).
type ReadyQueue interface {
	// Push inserts a reference, or updates its position if already present.
	Push(ctx context.Context, id string, priority int, scheduledAt time.Time) error
	// PopReady removes and returns the best id whose eligibility time is not
	// after now. Returns "" when nothing is due.
	PopReady(ctx context.Context, now time.Time) (string, error)
	// Remove drops a reference. Absent ids are not an error.
	Remove(ctx context.Context, id string) error
	Size(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
