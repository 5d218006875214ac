package database

import (
	"context"

	"github.com/jmlb/ai-news-engine/app/feed"
)

type ItemStore interface {
	InsertNew(ctx context.Context, runID string, items []feed.Item) (int, error)
	Count(ctx context.Context, source feed.Source) (int, error)
	Recent(ctx context.Context, limit int) ([]Item, error)
}

type RunStore interface {
	Start(ctx context.Context) (string, error)
	Finish(ctx context.Context, id, reportPath string, counts map[string]int) error
	Latest(ctx context.Context) (*Run, error)
}
