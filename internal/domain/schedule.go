package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrInvalidCronExpr       = errors.New("invalid cron expression")
	ErrScheduleAlreadyPaused = errors.New("schedule is already paused")
	ErrScheduleNotPaused     = errors.New("schedule is not paused")
	ErrScheduleNameConflict  = errors.New("schedule with this name already exists")
)

// Schedule is a recurring job template. Each firing materializes a regular
// job row and advances NextRunAt along the cron expression.
type Schedule struct {
	ID         string
	Name       string
	JobType    string
	Payload    json.RawMessage
	Priority   int
	MaxRetries int
	CronExpr   string

	Paused    bool
	NextRunAt time.Time
	LastRunAt *time.Time

	OwnerID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
