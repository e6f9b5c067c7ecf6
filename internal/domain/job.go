package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRetrying  Status = "retrying"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled, StatusRetrying:
		return true
	}
	return false
}

// Terminal reports whether no further transitions happen without an
// operator-issued retry command.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Cancellable: a job can only be cancelled before a worker owns it.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusRetrying
}

// Retryable: the retry command applies only to jobs that already reached
// failed or cancelled.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusCancelled
}

const (
	MinPriority = -1000
	MaxPriority = 1000

	MaxNameLen      = 200
	MaxPayloadBytes = 64 << 10
	MaxErrorLen     = 1000
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotCancellable = errors.New("job cannot be cancelled in its current state")
	ErrJobNotRetryable   = errors.New("job cannot be retried in its current state")
)

// ValidationError rejects a malformed submission before it reaches the queue.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type Job struct {
	ID       string
	Name     string
	Type     string
	Priority int // higher value = earlier dispatch
	Payload  json.RawMessage

	Status     Status
	Attempts   int // incremented each time execution begins
	MaxRetries int

	ScheduledAt time.Time
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Result json.RawMessage // nil until the job succeeds
	Error  *string         // last failure reason

	OwnerID     *string
	ClaimedBy   *string  // worker that holds or last held the claim
	DurationSec *float64 // wall-clock execution time of the final run
}

// Eligible reports whether a claim scan may pick the job up at instant now.
func (j *Job) Eligible(now time.Time) bool {
	return (j.Status == StatusPending || j.Status == StatusRetrying) && !j.ScheduledAt.After(now)
}
