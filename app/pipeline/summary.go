package pipeline

import (
	"log/slog"
	"time"

	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

type SourceSummary struct {
	Source feed.Source
	Items  int
	Stored int
	Stats  sources.Stats
	Err    error
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Date       window.Date
	ReportPath string
	Duration   time.Duration
	Sources    []SourceSummary
}

func (s *Summary) TotalItems() int {
	total := 0
	for _, src := range s.Sources {
		total += src.Items
	}
	return total
}

// Counts maps each source to the number of items in the report.
func (s *Summary) Counts() map[string]int {
	counts := make(map[string]int, len(s.Sources))
	for _, src := range s.Sources {
		counts[string(src.Source)] = src.Items
	}
	return counts
}

func (s *Summary) Log() {
	for _, src := range s.Sources {
		attrs := []any{
			"source", string(src.Source),
			"items", src.Items,
			"stored", src.Stored,
			"dropped", src.Stats.Dropped(),
		}
		attrs = append(attrs, src.Stats.LogAttrs()...)
		if src.Err != nil {
			attrs = append(attrs, "error", src.Err)
		}
		slog.Info("Source summary", attrs...)
	}

	slog.Info("Digest run completed",
		"run_id", s.RunID,
		"date", s.Date.String(),
		"total", s.TotalItems(),
		"report", s.ReportPath,
		"duration", s.Duration.String())
}
