package viewer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmlb/ai-news-engine/app/window"
)

var (
	ErrInvalidName = errors.New("invalid report name")
	ErrNotFound    = errors.New("report not found")
)

// ReportFile describes one markdown report on disk.
type ReportFile struct {
	Name    string
	Date    window.Date // zero when the name has no date prefix
	Size    int64
	ModTime time.Time
}

// Library reads reports from a single directory.
type Library struct {
	dir string
}

func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// List returns the *.md files in the directory, newest name first. A
// missing directory yields an empty list.
func (l *Library) List() ([]ReportFile, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}

	reports := make([]ReportFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, newReportFile(entry.Name(), info))
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Name > reports[j].Name
	})

	return reports, nil
}

// Open returns the content of the named report. Names must be plain
// *.md file names inside the directory.
func (l *Library) Open(name string) ([]byte, ReportFile, error) {
	if err := ValidateName(name); err != nil {
		return nil, ReportFile{}, err
	}

	path := filepath.Join(l.dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, ReportFile{}, ErrNotFound
	}
	if err != nil {
		return nil, ReportFile{}, fmt.Errorf("failed to stat report: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ReportFile{}, fmt.Errorf("failed to read report: %w", err)
	}

	return data, newReportFile(name, info), nil
}

func ValidateName(name string) error {
	if !strings.HasSuffix(name, ".md") {
		return fmt.Errorf("%w: %q is not a markdown file", ErrInvalidName, name)
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func newReportFile(name string, info fs.FileInfo) ReportFile {
	rf := ReportFile{
		Name:    name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if len(name) >= 10 {
		if d, err := window.ParseDate(name[:10]); err == nil {
			rf.Date = d
		}
	}
	return rf
}
