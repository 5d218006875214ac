// Package pipeline runs one digest: it fetches every enabled source
// concurrently, then deduplicates, optionally enriches and stores the
// items, and writes the markdown report.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmlb/ai-news-engine/app/database"
	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/report"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

// Enricher fills in optional article data. It must not drop items.
type Enricher interface {
	Run(ctx context.Context, items []feed.Item) []feed.Item
}

// Source pairs an adapter with the topics it is queried for.
type Source struct {
	Fetcher sources.Fetcher
	Topics  []string
}

type Options struct {
	Sources   []Source
	DaysBack  int
	Policy    window.Policy
	OutputDir string

	// Enricher runs on TechCrunch and Medium items when set.
	Enricher Enricher
	Items    database.ItemStore
	Runs     database.RunStore
}

type Pipeline struct {
	sources   []Source
	daysBack  int
	policy    window.Policy
	outputDir string
	enricher  Enricher
	items     database.ItemStore
	runs      database.RunStore
	builder   *report.Builder
	writer    *report.Writer
}

func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{
		sources:   opts.Sources,
		daysBack:  opts.DaysBack,
		policy:    opts.Policy,
		outputDir: opts.OutputDir,
		enricher:  opts.Enricher,
		items:     opts.Items,
		runs:      opts.Runs,
		builder:   report.NewBuilder(),
		writer:    report.NewWriter(),
	}
}

// Run executes one digest. Source failures are logged and leave their
// section empty; only a failed report write or a cancelled context is
// returned as an error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	today := p.policy.Today()

	summary := &Summary{Date: today}

	if p.runs != nil {
		runID, err := p.runs.Start(ctx)
		if err != nil {
			slog.Warn("Failed to record run start", "error", err)
		}
		summary.RunID = runID
	}

	slog.Info("Digest run started", "date", today.String(), "sources", len(p.sources), "days_back", p.daysBack, "run_id", summary.RunID)

	results, err := p.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	sections := make(report.Sections, len(results))
	for _, res := range results {
		items := feed.Dedupe(res.result.Items)

		if p.enricher != nil && enrichable(res.source) && len(items) > 0 {
			items = p.enricher.Run(ctx, items)
		}

		source := SourceSummary{
			Source: res.source,
			Items:  len(items),
			Stats:  res.result.Stats,
			Err:    res.err,
		}

		if p.items != nil && len(items) > 0 {
			stored, err := p.items.InsertNew(ctx, summary.RunID, items)
			if err != nil {
				slog.Error("Failed to store items", "source", string(res.source), "error", err)
			} else {
				source.Stored = stored
				slog.Info("Stored new items", "source", string(res.source), "new", stored, "total", len(items))
			}
		}

		sections[res.source] = items
		summary.Sources = append(summary.Sources, source)
	}

	body := p.builder.Build(today, sections)
	path, err := p.writer.Write(p.outputDir, today, body)
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	summary.ReportPath = path
	summary.Duration = time.Since(start)

	if p.runs != nil && summary.RunID != "" {
		if err := p.runs.Finish(ctx, summary.RunID, path, summary.Counts()); err != nil {
			slog.Warn("Failed to record run completion", "run_id", summary.RunID, "error", err)
		}
	}

	summary.Log()

	return summary, nil
}

type fetchResult struct {
	source feed.Source
	result sources.Result
	err    error
}

// fetchAll queries every source concurrently. Results come back in
// report order regardless of completion order.
func (p *Pipeline) fetchAll(ctx context.Context) ([]fetchResult, error) {
	slots := make([]fetchResult, len(p.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range p.sources {
		g.Go(func() error {
			name := src.Fetcher.Name()
			fetchStart := time.Now()

			result, err := src.Fetcher.Fetch(gctx, sources.Query{Topics: src.Topics, DaysBack: p.daysBack})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("Source failed", "source", string(name), "error", err)
			}

			slog.Debug("Source fetched", append([]any{"source", string(name), "duration", time.Since(fetchStart).String()}, result.Stats.LogAttrs()...)...)

			slots[i] = fetchResult{source: name, result: result, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("digest run cancelled: %w", err)
	}

	ordered := make([]fetchResult, 0, len(slots))
	for _, source := range feed.Sources {
		for _, slot := range slots {
			if slot.source == source {
				ordered = append(ordered, slot)
			}
		}
	}
	return ordered, nil
}

func enrichable(source feed.Source) bool {
	return source == feed.SourceTechCrunch || source == feed.SourceMedium
}
