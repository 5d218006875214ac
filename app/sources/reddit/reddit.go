// Package reddit reads the "new" listing of subreddits through the OAuth
// API using application-only credentials.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

const (
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIURL   = "https://oauth.reddit.com"

	linkPrefix       = "https://www.reddit.com"
	pageSize         = 100
	deletedAuthor    = "[deleted]"
	defaultPageLimit = 10
)

var _ sources.Fetcher = (*Fetcher)(nil)

type Options struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	TokenURL     string
	APIURL       string
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	PageLimit    int
	Timeout      time.Duration
	Policy       window.Policy
	Filterer     *feed.Filterer
	Keywords     []string
}

type Fetcher struct {
	client    *http.Client
	apiURL    string
	userAgent string
	limiter   *rate.Limiter
	pageLimit int
	timeout   time.Duration
	policy    window.Policy
	filterer  *feed.Filterer
	rule      feed.Rule
}

func NewFetcher(opts Options) *Fetcher {
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Limiter == nil {
		// Reddit allows 100 requests per minute for OAuth clients.
		opts.Limiter = rate.NewLimiter(rate.Every(700*time.Millisecond), 1)
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	if opts.Filterer == nil {
		opts.Filterer = feed.NewFilterer()
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	agentClient := &http.Client{
		Transport: &userAgentTransport{userAgent: opts.UserAgent, next: base.Transport},
		Timeout:   base.Timeout,
	}

	credentials := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, agentClient)

	return &Fetcher{
		client:    credentials.Client(tokenCtx),
		apiURL:    opts.APIURL,
		userAgent: opts.UserAgent,
		limiter:   opts.Limiter,
		pageLimit: opts.PageLimit,
		timeout:   opts.Timeout,
		policy:    opts.Policy,
		filterer:  opts.Filterer,
		rule:      feed.Rule{Keywords: opts.Keywords},
	}
}

func (f *Fetcher) Name() feed.Source {
	return feed.SourceReddit
}

// Fetch reads each subreddit in q.Topics and returns posts newest first.
func (f *Fetcher) Fetch(ctx context.Context, q sources.Query) (sources.Result, error) {
	var result sources.Result

	admitter := sources.Admitter{
		Cutoff:   f.policy.Cutoff(q.DaysBack),
		Rule:     f.rule,
		Filterer: f.filterer,
	}

	for _, subreddit := range q.Topics {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var stats sources.Stats
		items, err := f.fetchSubreddit(ctx, subreddit, admitter, &stats)
		if err != nil {
			sources.LogRetrievalError(&stats, &sources.RetrievalError{Source: f.Name(), Topic: subreddit, Err: err})
		}

		slog.Debug("Subreddit processed", append([]any{"subreddit", subreddit}, stats.LogAttrs()...)...)

		result.Items = append(result.Items, items...)
		result.Stats.Add(stats)
	}

	sort.SliceStable(result.Items, func(i, j int) bool {
		return result.Items[i].PublishedAt.After(result.Items[j].PublishedAt)
	})

	return result, nil
}

// fetchSubreddit pages through the listing until it runs out, hits the page
// cap, or reaches a post older than the cutoff. Listings are newest first,
// so nothing after that post can qualify.
func (f *Fetcher) fetchSubreddit(ctx context.Context, subreddit string, admitter sources.Admitter, stats *sources.Stats) ([]feed.Item, error) {
	var items []feed.Item
	after := ""

	for page := 0; page < f.pageLimit; page++ {
		resp, err := f.fetchPage(ctx, subreddit, after)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			slog.Warn("Failed to fetch listing page, keeping earlier pages", "subreddit", subreddit, "page", page, "error", err)
			return items, nil
		}

		for _, child := range resp.Data.Children {
			stats.Retrieved++
			p := child.Data

			created := time.Unix(int64(p.CreatedUTC), 0).UTC()
			published := window.DateOf(created, f.policy.Location)

			if published.Before(admitter.Cutoff) && !p.Stickied {
				stats.OutOfWindow++
				return items, nil
			}

			if item, ok := admitter.Admit(p.toItem(subreddit, created, published), stats); ok {
				items = append(items, item)
			}
		}

		if resp.Data.After == "" || len(resp.Data.Children) == 0 {
			break
		}
		after = resp.Data.After
	}

	return items, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, subreddit, after string) (*listing, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("raw_json", "1")
	if after != "" {
		params.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/r/%s/new?%s", f.apiURL, url.PathEscape(subreddit), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	return &l, nil
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
	Stickied    bool    `json:"stickied"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

func (p post) toItem(subreddit string, created time.Time, published window.Date) feed.Item {
	author := p.Author
	if author == "" {
		author = deletedAuthor
	}
	name := p.Subreddit
	if name == "" {
		name = subreddit
	}

	content := p.URL
	if p.IsSelf {
		content = p.Selftext
	}

	link := ""
	if p.Permalink != "" {
		link = linkPrefix + p.Permalink
	}

	return feed.Item{
		Source:      feed.SourceReddit,
		Title:       p.Title,
		Link:        link,
		Published:   published,
		PublishedAt: created,
		Topic:       subreddit,
		Author:      author,
		Subreddit:   name,
		Snippet:     p.Selftext,
		Content:     content,
		Score:       p.Score,
		Comments:    p.NumComments,
	}
}

type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	if t.userAgent == "" {
		return next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return next.RoundTrip(clone)
}
