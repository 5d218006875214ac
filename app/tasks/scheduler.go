package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultTaskTimeout = 2 * time.Hour

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler enqueues a digest task once a day at a fixed wall-clock time
// and executes queued tasks on a single worker, retrying failures with
// exponential backoff.
type Scheduler struct {
	runner      DigestRunner
	hour        int
	minute      int
	location    *time.Location
	taskTimeout time.Duration
	now         func() time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(runner DigestRunner, hour, minute int, location *time.Location, taskTimeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if location == nil {
		location = time.UTC
	}
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}

	return &Scheduler{
		runner:      runner,
		hour:        hour,
		minute:      minute,
		location:    location,
		taskTimeout: taskTimeout,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 10),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			next := NextRun(s.now(), s.hour, s.minute, s.location)
			slog.Info("Next digest scheduled", "at", next.Format(time.RFC3339))

			timer := time.NewTimer(time.Until(next))
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if err := s.EnqueueTask(NewDigestTask(s.runner, next)); err != nil {
					slog.Warn("Failed to enqueue digest task", "error", err)
				}
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}
	task.Fail(err)

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "scheduled_for", slotLabel(task.GetScheduledFor()), "attempt", task.Attempts(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "max_retries", task.GetMaxRetries(), "last_error", task.LastError())
		return
	}

	task.IncrementRetryCount()
	retryDelay := RetryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "error", retryErr)
			}
		}
	}()
}

func slotLabel(t time.Time) string {
	if t.IsZero() {
		return "manual"
	}
	return t.Format(time.RFC3339)
}

// RetryDelay doubles from one second per attempt, capped at 30 seconds.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(1<<uint(min(attempt-1, 5))) * time.Second
	return min(delay, 30*time.Second)
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
