package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmlb/ai-news-engine/app/render"
)

// Enricher downloads article pages and fills in ReadingMinutes. Failures
// leave the item untouched.
type Enricher struct {
	httpClient       *http.Client
	contentExtractor *ContentExtractor
	userAgent        string
	timeout          time.Duration
}

func NewEnricher(httpClient *http.Client, userAgent string, timeout time.Duration) *Enricher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Enricher{
		httpClient:       httpClient,
		contentExtractor: NewContentExtractor(),
		userAgent:        userAgent,
		timeout:          timeout,
	}
}

func (e *Enricher) Run(ctx context.Context, items []Item) []Item {
	successCount := 0
	errorCount := 0

	for i := range items {
		select {
		case <-ctx.Done():
			return items
		default:
		}

		minutes, err := e.enrichItem(ctx, items[i].Link)
		if err != nil {
			slog.Debug("Failed to extract content for item", "url", items[i].Link, "error", err)
			errorCount++
			continue
		}
		items[i].ReadingMinutes = minutes
		successCount++
	}

	slog.Debug("Content enrichment completed", "success", successCount, "errors", errorCount)
	return items
}

func (e *Enricher) enrichItem(ctx context.Context, link string) (int, error) {
	data, err := e.fetchArticleContent(ctx, link)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch article content: %w", err)
	}

	text, err := e.contentExtractor.Run(data, link)
	if err != nil {
		return 0, err
	}

	return ReadingMinutes(text), nil
}

func (e *Enricher) fetchArticleContent(ctx context.Context, link string) ([]byte, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	return render.ReadBody(resp.Body, render.MaxBodyBytes)
}
