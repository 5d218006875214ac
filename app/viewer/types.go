package viewer

import (
	"context"

	"github.com/jmlb/ai-news-engine/app/database"
	"github.com/jmlb/ai-news-engine/app/feed"
)

// RunReader is the read side of the run store shown on /health.
type RunReader interface {
	Latest(ctx context.Context) (*database.Run, error)
}

// ItemReader is the read side of the item store: totals on /health and the
// latest stored items on the index page.
type ItemReader interface {
	Count(ctx context.Context, source feed.Source) (int, error)
	Recent(ctx context.Context, limit int) ([]database.Item, error)
}

type Handler struct {
	library   *Library
	renderer  *Renderer
	generator *Generator
	runs      RunReader
	items     ItemReader
	baseUrl   string
	port      string
	version   string
}
