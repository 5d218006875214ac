package report

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmlb/ai-news-engine/app/window"
)

const maxCollisions = 99

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Write stores body as <dir>/<date>.md. When that name is taken it tries
// <date>_01.md, <date>_02.md and so on. Existing files are never replaced.
func (w *Writer) Write(dir string, date window.Date, body []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	for n := 0; n <= maxCollisions; n++ {
		path := filepath.Join(dir, FileName(date, n))

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create report file: %w", err)
		}

		if _, err := f.Write(body); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close report: %w", err)
		}

		slog.Info("Report written", "path", path, "bytes", len(body))
		return path, nil
	}

	return "", fmt.Errorf("no free report name for %s in %s", date, dir)
}

// FileName returns the report name for date; n > 0 adds a collision suffix.
func FileName(date window.Date, n int) string {
	if n == 0 {
		return date.String() + ".md"
	}
	return fmt.Sprintf("%s_%02d.md", date, n)
}
