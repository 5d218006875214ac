package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPLauncher serves sessions backed by plain GET requests. Scrolling is
// a no-op, so only the first batch of a listing is ever visible.
type HTTPLauncher struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
}

func NewHTTPLauncher(client *http.Client, userAgent string, timeout time.Duration) *HTTPLauncher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLauncher{Client: client, UserAgent: userAgent, Timeout: timeout}
}

func (l *HTTPLauncher) Launch(ctx context.Context) (Session, error) {
	return &httpSession{launcher: l}, nil
}

type httpSession struct {
	launcher *HTTPLauncher
	body     string
}

func (s *httpSession) Open(ctx context.Context, url string, waitFor string) error {
	body, err := Get(ctx, s.launcher.Client, url, s.launcher.UserAgent, s.launcher.Timeout)
	if err != nil {
		return err
	}
	s.body = string(body)
	return nil
}

func (s *httpSession) Scroll(ctx context.Context) error {
	return ctx.Err()
}

func (s *httpSession) HTML(ctx context.Context) (string, error) {
	if s.body == "" {
		return "", fmt.Errorf("no document loaded")
	}
	return s.body, nil
}

func (s *httpSession) Close() error {
	s.body = ""
	return nil
}

// Get fetches url and returns the body of a 200 response.
func Get(ctx context.Context, client *http.Client, url, userAgent string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	return ReadBody(resp.Body, MaxBodyBytes)
}

// MaxBodyBytes caps every page or API response read through this package.
var MaxBodyBytes int64 = 10 << 20

// ReadBody reads r up to limit bytes and fails when there is more.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}
