// Package render provides page sessions for sites that need a browser to
// produce their listing markup.
package render

import (
	"context"
	"time"
)

// Session is a single page scoped to one adapter run. Callers must Close
// it on every exit path.
type Session interface {
	// Open navigates to url. When waitFor is not empty it blocks until an
	// element matching the CSS selector is present or the timeout elapses.
	Open(ctx context.Context, url string, waitFor string) error
	// Scroll asks the page to load more content.
	Scroll(ctx context.Context) error
	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
