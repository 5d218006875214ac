package tasks

import (
	"context"

	"github.com/jmlb/ai-news-engine/app/pipeline"
)

// TaskSchedulerInterface is what the runner needs from the daily scheduler.
//
//	scheduler := NewScheduler(runner, 7, 30, loc, 0)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// DigestRunner executes one digest run.
type DigestRunner interface {
	Run(ctx context.Context) (*pipeline.Summary, error)
}
