package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeDigest TaskType = "digest"
)

const DefaultMaxRetries = 3

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetScheduledFor() time.Time
	GetRetryCount() int
	GetMaxRetries() int
	Attempts() int
	Fail(err error)
	LastError() error
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
}

// Task holds what the scheduler tracks for every queued job: the daily
// slot it belongs to, its retry budget and the outcome of the last attempt.
type Task struct {
	ID           string
	Type         TaskType
	ScheduledFor time.Time
	RetryCount   int
	MaxRetries   int
	StartedAt    *time.Time

	lastErr error
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetScheduledFor() time.Time {
	return t.ScheduledFor
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

// Attempts counts executions so far, including the first one.
func (t *Task) Attempts() int {
	if t.StartedAt == nil {
		return 0
	}
	return t.RetryCount + 1
}

func (t *Task) Fail(err error) {
	t.lastErr = err
}

func (t *Task) LastError() error {
	return t.lastErr
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

// NewTask creates a task for the slot at scheduledFor. A zero time means an
// ad hoc run.
func NewTask(taskType TaskType, scheduledFor time.Time) Task {
	return Task{
		ID:           uuid.NewString(),
		Type:         taskType,
		ScheduledFor: scheduledFor,
		MaxRetries:   DefaultMaxRetries,
	}
}
