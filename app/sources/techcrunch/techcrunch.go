// Package techcrunch scrapes the TechCrunch AI category page.
package techcrunch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/render"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

const (
	DefaultURL   = "https://techcrunch.com/category/artificial-intelligence/"
	defaultTopic = "artificial-intelligence"

	blockSelector   = "div.wp-block-tc23-post-picker"
	titleSelector   = "h2.wp-block-post-title a"
	authorSelector  = "div.wp-block-tc23-author-card-name a"
	excerptSelector = "p.wp-block-post-excerpt__excerpt"
	timeSelector    = "time.wp-block-tc23-post-time-ago"
)

var authorSlug = regexp.MustCompile(`/author/(.+?)/`)

var _ sources.Fetcher = (*Fetcher)(nil)

type Options struct {
	HTTPClient *http.Client
	PageURL    string
	UserAgent  string
	Timeout    time.Duration
	Policy     window.Policy
	Filterer   *feed.Filterer
	Keywords   []string
}

type Fetcher struct {
	httpClient *http.Client
	pageURL    string
	userAgent  string
	timeout    time.Duration
	policy     window.Policy
	filterer   *feed.Filterer
	rule       feed.Rule
}

func NewFetcher(opts Options) *Fetcher {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.PageURL == "" {
		opts.PageURL = DefaultURL
	}
	if opts.Filterer == nil {
		opts.Filterer = feed.NewFilterer()
	}
	return &Fetcher{
		httpClient: opts.HTTPClient,
		pageURL:    opts.PageURL,
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		policy:     opts.Policy,
		filterer:   opts.Filterer,
		rule:       feed.Rule{Keywords: opts.Keywords},
	}
}

func (f *Fetcher) Name() feed.Source {
	return feed.SourceTechCrunch
}

// Fetch reads the category page once. Query topics are not used: the page
// itself is the topic.
func (f *Fetcher) Fetch(ctx context.Context, q sources.Query) (sources.Result, error) {
	var result sources.Result

	data, err := render.Get(ctx, f.httpClient, f.pageURL, f.userAgent, f.timeout)
	if err != nil {
		sources.LogRetrievalError(&result.Stats, &sources.RetrievalError{Source: f.Name(), Topic: defaultTopic, Err: err})
		return result, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		sources.LogRetrievalError(&result.Stats, &sources.RetrievalError{Source: f.Name(), Topic: defaultTopic, Err: err})
		return result, nil
	}

	base, err := url.Parse(f.pageURL)
	if err != nil {
		return result, fmt.Errorf("invalid page URL: %w", err)
	}

	admitter := sources.Admitter{
		Cutoff:   f.policy.Cutoff(q.DaysBack),
		Rule:     f.rule,
		Filterer: f.filterer,
	}

	candidates, gaps := Extract(doc, base, f.policy.Today(), f.policy.Location)
	result.Stats.Retrieved = len(candidates) + gaps
	result.Stats.ExtractionGaps = gaps

	for _, candidate := range candidates {
		if item, ok := admitter.Admit(candidate, &result.Stats); ok {
			result.Items = append(result.Items, item)
		}
	}

	slog.Debug("TechCrunch page processed", append([]any{"url", f.pageURL}, result.Stats.LogAttrs()...)...)

	return result, nil
}

// Extract returns one candidate per post block carrying the mandatory
// title, link and excerpt, plus the number of blocks that lacked them.
// Each field comes from the first non-empty candidate in document order.
// Dates from datetime attributes are taken as calendar days in loc.
func Extract(doc *goquery.Document, base *url.URL, today window.Date, loc *time.Location) ([]feed.Item, int) {
	var items []feed.Item
	gaps := 0

	doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		title, href := extractTitle(block)
		excerpt := firstText(block.Find(excerptSelector))

		if title == "" || href == "" || excerpt == "" {
			gaps++
			return
		}

		item := feed.Item{
			Source:  feed.SourceTechCrunch,
			Title:   title,
			Link:    resolve(base, href),
			Snippet: excerpt,
			Topic:   defaultTopic,
			Author:  extractAuthor(block),
		}

		if published, ok := extractDate(block, today, loc); ok {
			item.Published = published
		}

		items = append(items, item)
	})

	return items, gaps
}

// extractTitle returns the first title anchor that has both text and href.
func extractTitle(block *goquery.Selection) (string, string) {
	var title, href string
	block.Find(titleSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		link := strings.TrimSpace(s.AttrOr("href", ""))
		if text == "" || link == "" {
			return true
		}
		title, href = text, link
		return false
	})
	return title, href
}

func firstText(sel *goquery.Selection) string {
	var text string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = strings.TrimSpace(s.Text())
		return text == ""
	})
	return text
}

func extractAuthor(block *goquery.Selection) string {
	href, ok := block.Find(authorSelector).First().Attr("href")
	if !ok {
		return ""
	}
	m := authorSlug.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], "-", " ")
}

func extractDate(block *goquery.Selection, today window.Date, loc *time.Location) (window.Date, bool) {
	var (
		published window.Date
		found     bool
	)
	block.Find(timeSelector).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if d, ok := window.ParseLongAge(node.Text(), today); ok {
			published, found = d, true
			return false
		}
		if raw, ok := node.Attr("datetime"); ok {
			if t, ok := window.ParseInstant(raw); ok {
				published, found = window.DateOf(t, loc), true
				return false
			}
		}
		return true
	})
	return published, found
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
