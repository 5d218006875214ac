// Package youtube searches the YouTube Data API for recent videos and reads
// optional channel Atom feeds.
package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/youtube/v3"

	"github.com/jmlb/ai-news-engine/app/cache"
	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/render"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

const (
	DefaultTranscriptURL = "https://www.youtube.com/api/timedtext"
	DefaultFeedURL       = "https://www.youtube.com/feeds/videos.xml"

	watchURL          = "https://www.youtube.com/watch?v="
	maxResults        = 50
	videosBatchSize   = 50
	defaultCacheTTL   = 7 * 24 * time.Hour
	relevanceLanguage = "en"
)

var _ sources.Fetcher = (*Fetcher)(nil)

// Cache is the subset of a key/value store used for secondary lookups.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Options struct {
	Service         *youtube.Service
	HTTPClient      *http.Client
	TranscriptURL   string
	FeedURL         string
	Channels        []string
	Cache           Cache
	CacheTTL        time.Duration
	SkipTranscripts bool
	Timeout         time.Duration
	Policy          window.Policy
	Filterer        *feed.Filterer
	Keywords        []string
}

type Fetcher struct {
	service         *youtube.Service
	httpClient      *http.Client
	transcriptURL   string
	feedURL         string
	channels        []string
	cache           Cache
	cacheTTL        time.Duration
	skipTranscripts bool
	timeout         time.Duration
	policy          window.Policy
	filterer        *feed.Filterer
	parser          *feed.Parser
	rule            feed.Rule
}

func NewFetcher(opts Options) *Fetcher {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.TranscriptURL == "" {
		opts.TranscriptURL = DefaultTranscriptURL
	}
	if opts.FeedURL == "" {
		opts.FeedURL = DefaultFeedURL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Filterer == nil {
		opts.Filterer = feed.NewFilterer()
	}
	return &Fetcher{
		service:         opts.Service,
		httpClient:      opts.HTTPClient,
		transcriptURL:   opts.TranscriptURL,
		feedURL:         opts.FeedURL,
		channels:        opts.Channels,
		cache:           opts.Cache,
		cacheTTL:        opts.CacheTTL,
		skipTranscripts: opts.SkipTranscripts,
		timeout:         opts.Timeout,
		policy:          opts.Policy,
		filterer:        opts.Filterer,
		parser:          feed.NewParser(),
		rule:            feed.Rule{Keywords: opts.Keywords},
	}
}

func (f *Fetcher) Name() feed.Source {
	return feed.SourceYouTube
}

// Fetch runs one search per topic, then reads configured channel feeds.
// A video found by several topics keeps the first topic. Results are
// sorted newest first.
func (f *Fetcher) Fetch(ctx context.Context, q sources.Query) (sources.Result, error) {
	var result sources.Result

	admitter := sources.Admitter{
		Cutoff:   f.policy.Cutoff(q.DaysBack),
		Rule:     f.rule,
		Filterer: f.filterer,
	}
	publishedAfter := f.policy.PublishedAfter(q.DaysBack).Format(time.RFC3339)
	seen := make(map[string]bool)

	var searched []feed.Item
	for _, topic := range q.Topics {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		results, err := f.search(ctx, topic, publishedAfter)
		if err != nil {
			sources.LogRetrievalError(&result.Stats, &sources.RetrievalError{Source: f.Name(), Topic: topic, Err: err})
			continue
		}

		for _, r := range results {
			result.Stats.Retrieved++
			candidate, videoID := f.toItem(r, topic)
			if videoID != "" && seen[videoID] {
				continue
			}
			if item, ok := admitter.Admit(candidate, &result.Stats); ok {
				seen[videoID] = true
				searched = append(searched, item)
			}
		}
	}

	f.addDescriptions(ctx, searched)
	if !f.skipTranscripts {
		f.addTranscripts(ctx, searched)
	}
	result.Items = append(result.Items, searched...)

	for _, channel := range f.channels {
		items, err := f.fetchChannel(ctx, channel)
		if err != nil {
			sources.LogRetrievalError(&result.Stats, &sources.RetrievalError{Source: f.Name(), Topic: channel, Err: err})
			continue
		}
		for _, candidate := range items {
			result.Stats.Retrieved++
			if containsLink(result.Items, candidate.Link) {
				continue
			}
			if item, ok := admitter.Admit(candidate, &result.Stats); ok {
				result.Items = append(result.Items, item)
			}
		}
	}

	sort.SliceStable(result.Items, func(i, j int) bool {
		return result.Items[i].PublishedAt.After(result.Items[j].PublishedAt)
	})

	slog.Debug("YouTube search completed", result.Stats.LogAttrs()...)

	return result, nil
}

func (f *Fetcher) search(ctx context.Context, topic, publishedAfter string) ([]*youtube.SearchResult, error) {
	if f.service == nil {
		return nil, fmt.Errorf("youtube service not configured")
	}

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	resp, err := f.service.Search.List([]string{"id", "snippet"}).
		Q(topic).
		Type("video").
		MaxResults(maxResults).
		PublishedAfter(publishedAfter).
		RelevanceLanguage(relevanceLanguage).
		Order("date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search.list failed: %w", err)
	}
	return resp.Items, nil
}

func (f *Fetcher) toItem(r *youtube.SearchResult, topic string) (feed.Item, string) {
	item := feed.Item{Source: feed.SourceYouTube, Topic: topic}
	if r == nil || r.Id == nil || r.Id.VideoId == "" {
		return item, ""
	}

	videoID := r.Id.VideoId
	item.Link = watchURL + videoID

	if r.Snippet != nil {
		// The API returns HTML-escaped titles.
		item.Title = html.UnescapeString(r.Snippet.Title)
		item.Channel = html.UnescapeString(r.Snippet.ChannelTitle)
		item.Snippet = html.UnescapeString(r.Snippet.Description)
		if t, ok := window.ParseInstant(r.Snippet.PublishedAt); ok {
			item.PublishedAt = t.UTC()
			item.Published = window.DateOf(t, f.policy.Location)
		}
	}

	return item, videoID
}

// addDescriptions replaces truncated search snippets with the full video
// description. Lookups are best effort.
func (f *Fetcher) addDescriptions(ctx context.Context, items []feed.Item) {
	pending := make(map[string][]int)
	var ids []string

	for i, item := range items {
		id := videoID(item.Link)
		if id == "" {
			continue
		}
		if cached, ok := f.cacheGet(ctx, cache.Key("description", id)); ok {
			items[i].Description = cached
			continue
		}
		if _, ok := pending[id]; !ok {
			ids = append(ids, id)
		}
		pending[id] = append(pending[id], i)
	}

	if f.service == nil {
		return
	}

	for start := 0; start < len(ids); start += videosBatchSize {
		end := min(start+videosBatchSize, len(ids))

		callCtx, cancel := f.withTimeout(ctx)
		resp, err := f.service.Videos.List([]string{"snippet"}).Id(ids[start:end]...).Context(callCtx).Do()
		cancel()
		if err != nil {
			slog.Warn("Failed to fetch video descriptions", "count", end-start, "error", err)
			continue
		}

		for _, video := range resp.Items {
			if video == nil || video.Snippet == nil {
				continue
			}
			for _, i := range pending[video.Id] {
				items[i].Description = video.Snippet.Description
			}
			f.cacheSet(ctx, cache.Key("description", video.Id), video.Snippet.Description)
		}
	}
}

func (f *Fetcher) addTranscripts(ctx context.Context, items []feed.Item) {
	for i := range items {
		id := videoID(items[i].Link)
		if id == "" {
			continue
		}
		key := cache.Key("transcript", id)
		if cached, ok := f.cacheGet(ctx, key); ok {
			items[i].Transcript = cached
			continue
		}

		transcript, err := f.fetchTranscript(ctx, id)
		if err != nil {
			slog.Debug("Transcript unavailable", "video_id", id, "error", err)
			continue
		}
		items[i].Transcript = transcript
		f.cacheSet(ctx, key, transcript)
	}
}

type timedText struct {
	Texts []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

func (f *Fetcher) fetchTranscript(ctx context.Context, id string) (string, error) {
	params := url.Values{}
	params.Set("v", id)
	params.Set("lang", relevanceLanguage)

	data, err := render.Get(ctx, f.httpClient, f.transcriptURL+"?"+params.Encode(), "", f.timeout)
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", nil
	}

	var tt timedText
	if err := xml.Unmarshal(data, &tt); err != nil {
		return "", fmt.Errorf("failed to parse transcript: %w", err)
	}

	parts := make([]string, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		if text := strings.TrimSpace(html.UnescapeString(t.Text)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (f *Fetcher) fetchChannel(ctx context.Context, channelID string) ([]feed.Item, error) {
	params := url.Values{}
	params.Set("channel_id", channelID)

	data, err := render.Get(ctx, f.httpClient, f.feedURL+"?"+params.Encode(), "", f.timeout)
	if err != nil {
		return nil, err
	}
	return f.parser.Run(data, feed.SourceYouTube, channelID, f.policy)
}

func (f *Fetcher) cacheGet(ctx context.Context, key string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	val, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("Cache read failed", "key", key, "error", err)
		return "", false
	}
	return val, ok
}

func (f *Fetcher) cacheSet(ctx context.Context, key, value string) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(ctx, key, value, f.cacheTTL); err != nil {
		slog.Debug("Cache write failed", "key", key, "error", err)
	}
}

func (f *Fetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout > 0 {
		return context.WithTimeout(ctx, f.timeout)
	}
	return context.WithCancel(ctx)
}

func videoID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}

func containsLink(items []feed.Item, link string) bool {
	for _, item := range items {
		if item.Link == link {
			return true
		}
	}
	return false
}
