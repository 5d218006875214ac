// Package sources defines the contract shared by the per-site adapters:
// each one retrieves raw listings, extracts candidate records and filters
// them into normalized items.
package sources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/window"
)

// Query is one fetch request. Topics are the subreddits, search terms or
// tags the adapter iterates over.
type Query struct {
	Topics   []string
	DaysBack int
}

type Fetcher interface {
	Name() feed.Source
	Fetch(ctx context.Context, q Query) (Result, error)
}

type Result struct {
	Items []feed.Item
	Stats Stats
}

// Stats counts what happened to candidates during one fetch.
type Stats struct {
	Retrieved      int
	Emitted        int
	ExtractionGaps int
	OutOfWindow    int
	OffTopic       int
	OffLanguage    int
	FailedTopics   int
}

func (s *Stats) Add(other Stats) {
	s.Retrieved += other.Retrieved
	s.Emitted += other.Emitted
	s.ExtractionGaps += other.ExtractionGaps
	s.OutOfWindow += other.OutOfWindow
	s.OffTopic += other.OffTopic
	s.OffLanguage += other.OffLanguage
	s.FailedTopics += other.FailedTopics
}

func (s Stats) Dropped() int {
	return s.ExtractionGaps + s.OutOfWindow + s.OffTopic + s.OffLanguage
}

func (s Stats) LogAttrs() []any {
	return []any{
		"retrieved", s.Retrieved,
		"emitted", s.Emitted,
		"extraction_gaps", s.ExtractionGaps,
		"out_of_window", s.OutOfWindow,
		"off_topic", s.OffTopic,
		"off_language", s.OffLanguage,
		"failed_topics", s.FailedTopics,
	}
}

// RetrievalError reports that the listing for one topic could not be
// obtained. It never aborts a run.
type RetrievalError struct {
	Source feed.Source
	Topic  string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s: failed to retrieve %q: %v", e.Source, e.Topic, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// LogRetrievalError records a failed topic and bumps the counter.
func LogRetrievalError(stats *Stats, err *RetrievalError) {
	stats.FailedTopics++
	slog.Warn("Source retrieval failed, skipping topic",
		"source", string(err.Source),
		"topic", err.Topic,
		"error", err.Err)
}

// Admitter applies the extraction contract and the filter chain in order:
// record completeness, time window, relevance, language.
type Admitter struct {
	Cutoff   window.Date
	Rule     feed.Rule
	Filterer *feed.Filterer
}

// Admit normalizes candidate and returns it with true when it survives
// every filter. Each drop is counted in stats.
func (a Admitter) Admit(candidate feed.Item, stats *Stats) (feed.Item, bool) {
	item, ok := feed.Normalize(candidate)
	if !ok {
		stats.ExtractionGaps++
		return item, false
	}

	if !window.InWindow(item.Published, a.Cutoff) {
		stats.OutOfWindow++
		return item, false
	}

	if a.Filterer != nil {
		switch a.Filterer.Check(item, a.Rule) {
		case feed.ReasonOffTopic:
			stats.OffTopic++
			return item, false
		case feed.ReasonOffLanguage:
			stats.OffLanguage++
			return item, false
		}
	}

	stats.Emitted++
	return item, true
}
