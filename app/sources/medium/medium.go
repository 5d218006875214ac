// Package medium scrapes Medium tag archive pages. The archive loads more
// posts as the page is scrolled, so it is read through a browser session.
package medium

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/render"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

const (
	DefaultBaseURL = "https://medium.com"

	defaultScrollDelay     = 2 * time.Second
	defaultMaxEmptyScrolls = 3
	defaultMaxScrolls      = 30
)

var _ sources.Fetcher = (*Fetcher)(nil)

type Options struct {
	Launcher        render.Launcher
	BaseURL         string
	ScrollDelay     time.Duration
	MaxEmptyScrolls int
	MaxScrolls      int
	ValidateTags    bool
	RelatedTags     []string
	Limiter         *rate.Limiter
	Policy          window.Policy
	Filterer        *feed.Filterer
	Keywords        []string
}

type Fetcher struct {
	launcher        render.Launcher
	baseURL         string
	scrollDelay     time.Duration
	maxEmptyScrolls int
	maxScrolls      int
	validateTags    bool
	relatedTags     []string
	limiter         *rate.Limiter
	policy          window.Policy
	filterer        *feed.Filterer
	rule            feed.Rule
}

func NewFetcher(opts Options) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ScrollDelay < 0 {
		opts.ScrollDelay = defaultScrollDelay
	}
	if opts.MaxEmptyScrolls <= 0 {
		opts.MaxEmptyScrolls = defaultMaxEmptyScrolls
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = defaultMaxScrolls
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Second), 2)
	}
	if opts.Filterer == nil {
		opts.Filterer = feed.NewFilterer()
	}
	return &Fetcher{
		launcher:        opts.Launcher,
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		scrollDelay:     opts.ScrollDelay,
		maxEmptyScrolls: opts.MaxEmptyScrolls,
		maxScrolls:      opts.MaxScrolls,
		validateTags:    opts.ValidateTags,
		relatedTags:     opts.RelatedTags,
		limiter:         opts.Limiter,
		policy:          opts.Policy,
		filterer:        opts.Filterer,
		rule:            feed.Rule{Keywords: opts.Keywords, RequireEnglish: true},
	}
}

func (f *Fetcher) Name() feed.Source {
	return feed.SourceMedium
}

// Fetch scrapes the archive of every tag in q.Topics. Each tag gets its own
// session, released before the next tag starts.
func (f *Fetcher) Fetch(ctx context.Context, q sources.Query) (sources.Result, error) {
	var result sources.Result

	if f.launcher == nil {
		return result, fmt.Errorf("medium: no page launcher configured")
	}

	admitter := sources.Admitter{
		Cutoff:   f.policy.Cutoff(q.DaysBack),
		Rule:     f.rule,
		Filterer: f.filterer,
	}

	accepted := f.acceptedTags(q.Topics)

	for _, tag := range q.Topics {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var stats sources.Stats
		items, err := f.fetchTag(ctx, tag, admitter, accepted, &stats)
		if err != nil {
			sources.LogRetrievalError(&stats, &sources.RetrievalError{Source: f.Name(), Topic: tag, Err: err})
		}

		slog.Debug("Medium tag processed", append([]any{"tag", tag}, stats.LogAttrs()...)...)

		result.Items = append(result.Items, items...)
		result.Stats.Add(stats)
	}

	result.Items = feed.Dedupe(result.Items)
	return result, nil
}

func (f *Fetcher) fetchTag(ctx context.Context, tag string, admitter sources.Admitter, accepted map[string]bool, stats *sources.Stats) ([]feed.Item, error) {
	session, err := f.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("Failed to close session", "tag", tag, "error", err)
		}
	}()

	archiveURL := fmt.Sprintf("%s/tag/%s/archive", f.baseURL, url.PathEscape(tag))
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := session.Open(ctx, archiveURL, "article"); err != nil {
		return nil, err
	}

	items, err := f.scrollArchive(ctx, session, tag, admitter, stats)
	if err != nil {
		return items, err
	}

	if f.validateTags && len(items) > 0 {
		items = f.filterByTags(ctx, session, accepted, items)
	}

	return items, nil
}

// scrollArchive extracts the blocks that appeared since the last pass,
// then scrolls. It stops after maxEmptyScrolls consecutive passes without a
// new admitted item, or after maxScrolls passes.
func (f *Fetcher) scrollArchive(ctx context.Context, session render.Session, tag string, admitter sources.Admitter, stats *sources.Stats) ([]feed.Item, error) {
	var items []feed.Item
	seen := make(map[string]bool)
	processed := 0
	emptyPasses := 0
	base, _ := url.Parse(f.baseURL)

	for pass := 0; ; pass++ {
		html, err := session.HTML(ctx)
		if err != nil {
			if pass == 0 {
				return nil, err
			}
			slog.Warn("Failed to read page, keeping earlier results", "tag", tag, "pass", pass, "error", err)
			return items, nil
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return items, fmt.Errorf("failed to parse page: %w", err)
		}

		blocks := doc.Find("article")
		newItems := 0
		blocks.Each(func(i int, block *goquery.Selection) {
			if i < processed {
				return
			}
			stats.Retrieved++
			candidate := ExtractArticle(block, base, f.policy.Today())
			candidate.Topic = tag
			if candidate.Title == "" || candidate.Link == "" || candidate.Snippet == "" {
				stats.ExtractionGaps++
				return
			}
			if seen[candidate.Link] {
				return
			}
			if item, ok := admitter.Admit(candidate, stats); ok {
				seen[item.Link] = true
				items = append(items, item)
				newItems++
			}
		})
		processed = max(processed, blocks.Length())

		if newItems == 0 {
			emptyPasses++
		} else {
			emptyPasses = 0
		}

		if emptyPasses >= f.maxEmptyScrolls || pass+1 >= f.maxScrolls {
			return items, nil
		}

		if err := session.Scroll(ctx); err != nil {
			slog.Warn("Failed to scroll, keeping earlier results", "tag", tag, "error", err)
			return items, nil
		}
		if err := render.Sleep(ctx, f.scrollDelay); err != nil {
			return items, err
		}
	}
}

// ExtractArticle reads one archive card. Fields are taken from the first
// non-empty candidate in document order. Title, link and snippet are
// required; the caller discards cards missing any of them.
func ExtractArticle(block *goquery.Selection, base *url.URL, today window.Date) feed.Item {
	item := feed.Item{Source: feed.SourceMedium}

	block.Find("div[aria-label]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if label := strings.TrimSpace(s.AttrOr("aria-label", "")); label != "" {
			item.Title = label
			return false
		}
		return true
	})
	if item.Title == "" {
		block.Find("h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := strings.TrimSpace(s.Text()); text != "" {
				item.Title = text
				return false
			}
			return true
		})
	}

	block.Find("div[data-href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if href := s.AttrOr("data-href", ""); strings.Contains(href, "https") {
			item.Link = resolve(base, href)
			return false
		}
		return true
	})

	block.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := s.AttrOr("src", "")
		lower := strings.ToLower(src)
		if strings.Contains(lower, ".jpg") || strings.Contains(lower, ".jpeg") || strings.Contains(lower, ".png") {
			item.Image = src
			return false
		}
		return true
	})

	block.Find("h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := strings.TrimSpace(s.Text()); text != "" {
			item.Snippet = text
			return false
		}
		return true
	})

	// Ages sit in mixed content such as "<a>Jane</a> · 2d ago", so each
	// element's own text is scanned in document order.
	block.AddSelection(block.Find("*")).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if d, ok := window.ParseAge(ownText(s), today); ok {
			item.Published = d
			return false
		}
		return true
	})

	return item
}

// ownText joins the text nodes directly under s, skipping child elements.
func ownText(s *goquery.Selection) string {
	var parts []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			parts = append(parts, c.Text())
		}
	})
	return strings.Join(parts, " ")
}

func (f *Fetcher) acceptedTags(topics []string) map[string]bool {
	accepted := make(map[string]bool, len(f.relatedTags)+len(topics))
	for _, t := range append(slices.Clone(f.relatedTags), topics...) {
		accepted[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return accepted
}

// filterByTags opens each article and keeps it when more than one of its
// tags is in the accepted set. Articles that fail to load are kept.
func (f *Fetcher) filterByTags(ctx context.Context, session render.Session, accepted map[string]bool, items []feed.Item) []feed.Item {
	kept := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if err := f.limiter.Wait(ctx); err != nil {
			return append(kept, item)
		}
		if err := session.Open(ctx, item.Link, ""); err != nil {
			slog.Debug("Failed to open article for tag check, keeping it", "url", item.Link, "error", err)
			kept = append(kept, item)
			continue
		}
		html, err := session.HTML(ctx)
		if err != nil {
			kept = append(kept, item)
			continue
		}

		if CountAcceptedTags(html, accepted) > 1 {
			kept = append(kept, item)
		} else {
			slog.Debug("Article dropped by tag check", "url", item.Link)
		}
	}
	return kept
}

// CountAcceptedTags counts distinct /tag/ links in html whose slug is in
// accepted.
func CountAcceptedTags(html string, accepted map[string]bool) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}

	found := make(map[string]bool)
	doc.Find(`a[href*="/tag/"]`).Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		slug := href[strings.Index(href, "/tag/")+len("/tag/"):]
		if i := strings.IndexAny(slug, "?#/"); i >= 0 {
			slug = slug[:i]
		}
		slug = strings.ToLower(slug)
		if accepted[slug] {
			found[slug] = true
		}
	})
	return len(found)
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
