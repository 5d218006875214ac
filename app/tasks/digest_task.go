package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type DigestTask struct {
	Task
	runner DigestRunner
}

func NewDigestTask(runner DigestRunner, scheduledFor time.Time) *DigestTask {
	return &DigestTask{
		Task:   NewTask(TaskTypeDigest, scheduledFor),
		runner: runner,
	}
}

func (t *DigestTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	summary, err := t.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("digest run failed: %w", err)
	}

	slog.Info("Digest task completed",
		"id", t.ID,
		"attempt", t.Attempts(),
		"items", summary.TotalItems(),
		"report", summary.ReportPath,
		"duration", t.GetDuration().String())

	return nil
}
