package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/jmlb/ai-news-engine/app/feed"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Sources and credentials
	Sources            []string `long:"sources" env:"SOURCES" env-delim:"," description:"Comma separated list of enabled sources (techcrunch, youtube, reddit, medium)"`
	RedditClientID     string   `long:"reddit-client-id" env:"REDDIT_CLIENT_ID" description:"Reddit application client ID"`
	RedditClientSecret string   `long:"reddit-client-secret" env:"REDDIT_CLIENT_SECRET" description:"Reddit application client secret"`
	RedditUserAgent    string   `long:"reddit-user-agent" env:"REDDIT_USER_AGENT" description:"User agent sent to the Reddit API"`
	RedditPageLimit    int      `long:"reddit-page-limit" env:"REDDIT_PAGE_LIMIT" default:"10" description:"Maximum listing pages fetched per subreddit"`
	YouTubeAPIKey      string   `long:"youtube-api-key" env:"YOUTUBE_API_KEY" description:"YouTube Data API key"`

	// Topics (override the sources file and built-in defaults)
	Subreddits        []string `long:"subreddit" env:"SUBREDDITS" env-delim:"," description:"Subreddits to read"`
	YouTubeTopics     []string `long:"youtube-topic" env:"YOUTUBE_TOPICS" env-delim:"," description:"YouTube search terms"`
	YouTubeChannels   []string `long:"youtube-channel" env:"YOUTUBE_CHANNELS" env-delim:"," description:"YouTube channel IDs read through their Atom feeds"`
	MediumTopics      []string `long:"medium-topic" env:"MEDIUM_TOPICS" env-delim:"," description:"Medium tags to scrape"`
	MediumRelatedTags []string `long:"medium-related-tag" env:"MEDIUM_RELATED_TAGS" env-delim:"," description:"Tags accepted by Medium tag validation"`
	RelevanceTerms    []string `long:"relevance-term" env:"RELEVANCE_TERMS" env-delim:"," description:"Keywords required for every source without its own keyword list"`
	SourcesFile       string   `long:"sources-file" env:"SOURCES_FILE" description:"YAML file with per-source topics and keywords"`

	// Medium scraping
	MediumValidateTags    bool `long:"medium-validate-tags" env:"MEDIUM_VALIDATE_TAGS" description:"Open each Medium article and check its tags"`
	MediumScrollDelayMS   int  `long:"medium-scroll-delay" env:"MEDIUM_SCROLL_DELAY_MS" default:"2000" description:"Delay after each scroll in milliseconds"`
	MediumMaxEmptyScrolls int  `long:"medium-max-empty-scrolls" env:"MEDIUM_MAX_EMPTY_SCROLLS" default:"3" description:"Consecutive scrolls without new items before stopping"`
	MediumMaxScrolls      int  `long:"medium-max-scrolls" env:"MEDIUM_MAX_SCROLLS" default:"30" description:"Hard cap on scrolls per tag"`

	// Run configuration
	DaysBack       int    `long:"days-back" env:"DAYS_BACK" default:"1" description:"Number of days to look back"`
	OutputDir      string `long:"output-dir" env:"OUTPUT_DIR" default:"news" description:"Directory for generated reports"`
	DBPath         string `long:"db-path" env:"DB_PATH" default:"ai_news.db" description:"SQLite database file (empty disables storage)"`
	RedisAddr      string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for caching secondary lookups (optional)"`
	Browser        string `long:"browser" env:"BROWSER" default:"chrome" choice:"chrome" choice:"http" description:"Page renderer for scraped sources"`
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Per-request timeout in seconds"`
	ExtractContent bool   `long:"extract-content" env:"EXTRACT_CONTENT" description:"Download articles to estimate reading time"`
	DailyAt        string `long:"daily-at" env:"DAILY_AT" description:"Run every day at HH:MM instead of once"`
	RunNow         bool   `long:"run-now" env:"RUN_NOW" description:"With --daily-at, also run a digest right away"`

	// Viewer
	Port    string `long:"port" env:"PORT" default:"8080" description:"Viewer HTTP port"`
	BaseUrl string `long:"base-url" env:"BASE_URL" description:"Public base URL for the viewer"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36" description:"User agent for scraped pages"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone used for calendar days (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads .env (if present), the environment and command-line flags.
// It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return Parse(os.Args[1:])
}

// LoadViewer is Load without the source credential checks; the viewer
// never contacts a source.
func LoadViewer() (*Cfg, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return ParseViewer(os.Args[1:])
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &ConfigurationError{Field: ".env", Reason: err.Error()}
	}
	return nil
}

// Parse builds and fully validates a configuration from args and the
// environment.
func Parse(args []string) (*Cfg, error) {
	cfg, err := parse(args)
	if err != nil || cfg == nil {
		return cfg, err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseViewer(args []string) (*Cfg, error) {
	return parse(args)
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, &ConfigurationError{Field: "arguments", Reason: err.Error()}
	}

	file := &SourcesFile{}
	if raw.SourcesFile != "" {
		loaded, err := LoadSourcesFile(raw.SourcesFile)
		if err != nil {
			return nil, &ConfigurationError{Field: "SOURCES_FILE", Reason: err.Error()}
		}
		file = loaded
	}

	cfg := &Cfg{
		Reddit: RedditCfg{
			ClientID:     strings.TrimSpace(raw.RedditClientID),
			ClientSecret: strings.TrimSpace(raw.RedditClientSecret),
			UserAgent:    strings.TrimSpace(raw.RedditUserAgent),
			Subreddits:   pickList(raw.Subreddits, file.Reddit.Subreddits, DefaultSubreddits),
			Keywords:     pickList(file.Reddit.Keywords, raw.RelevanceTerms, nil),
			PageLimit:    raw.RedditPageLimit,
		},
		YouTube: YouTubeCfg{
			APIKey:   strings.TrimSpace(raw.YouTubeAPIKey),
			Topics:   pickList(raw.YouTubeTopics, file.YouTube.Topics, DefaultYouTubeTopics),
			Channels: pickList(raw.YouTubeChannels, file.YouTube.Channels, nil),
			Keywords: pickList(file.YouTube.Keywords, raw.RelevanceTerms, nil),
		},
		TechCrunch: TechCrunchCfg{
			URL:      cmp.Or(file.TechCrunch.URL, DefaultTechCrunchURL),
			Keywords: pickList(file.TechCrunch.Keywords, raw.RelevanceTerms, nil),
		},
		Medium: MediumCfg{
			Topics:          pickList(raw.MediumTopics, file.Medium.Topics, DefaultMediumTopics),
			RelatedTags:     pickList(raw.MediumRelatedTags, file.Medium.RelatedTags, DefaultMediumRelatedTags),
			Keywords:        pickList(file.Medium.Keywords, raw.RelevanceTerms, nil),
			ValidateTags:    raw.MediumValidateTags,
			ScrollDelay:     time.Duration(raw.MediumScrollDelayMS) * time.Millisecond,
			MaxEmptyScrolls: raw.MediumMaxEmptyScrolls,
			MaxScrolls:      raw.MediumMaxScrolls,
		},
		DaysBack:       raw.DaysBack,
		OutputDir:      raw.OutputDir,
		DBPath:         raw.DBPath,
		RedisAddr:      raw.RedisAddr,
		Browser:        raw.Browser,
		RequestTimeout: time.Duration(raw.RequestTimeout) * time.Second,
		ExtractContent: raw.ExtractContent,
		DailyAt:        strings.TrimSpace(raw.DailyAt),
		RunNow:         raw.RunNow,
		Port:           raw.Port,
		BaseUrl:        strings.TrimRight(raw.BaseUrl, "/"),
		UserAgent:      raw.UserAgent,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	sources, err := parseSources(pickList(raw.Sources, file.Sources, sourceNames()))
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	loc, err := time.LoadLocation(cmp.Or(cfg.Timezone, "UTC"))
	if err != nil {
		return nil, &ConfigurationError{Field: "TZ", Reason: fmt.Sprintf("invalid timezone %q: %v", cfg.Timezone, err)}
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks numeric ranges and formats.
func (c *Cfg) Validate() error {
	nonNegativeFields := map[string]int{
		"DAYS_BACK":                c.DaysBack,
		"REDDIT_PAGE_LIMIT":        c.Reddit.PageLimit,
		"MEDIUM_MAX_EMPTY_SCROLLS": c.Medium.MaxEmptyScrolls,
		"MEDIUM_MAX_SCROLLS":       c.Medium.MaxScrolls,
	}
	for field, value := range nonNegativeFields {
		if value < 0 {
			return &ConfigurationError{Field: field, Reason: "must be non-negative"}
		}
	}

	if c.RequestTimeout <= 0 {
		return &ConfigurationError{Field: "REQUEST_TIMEOUT", Reason: "must be positive"}
	}
	if c.OutputDir == "" {
		return &ConfigurationError{Field: "OUTPUT_DIR", Reason: "is required"}
	}
	if c.DailyAt != "" {
		if _, _, err := ParseClock(c.DailyAt); err != nil {
			return &ConfigurationError{Field: "DAILY_AT", Reason: err.Error()}
		}
	}

	return nil
}

// ValidateCredentials checks that every enabled source has the credentials
// it needs.
func (c *Cfg) ValidateCredentials() error {
	if c.Enabled(feed.SourceReddit) {
		required := map[string]string{
			"REDDIT_CLIENT_ID":     c.Reddit.ClientID,
			"REDDIT_CLIENT_SECRET": c.Reddit.ClientSecret,
			"REDDIT_USER_AGENT":    c.Reddit.UserAgent,
		}
		for _, field := range []string{"REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "REDDIT_USER_AGENT"} {
			if required[field] == "" {
				return &ConfigurationError{Field: field, Reason: "is required when the reddit source is enabled"}
			}
		}
	}

	if c.Enabled(feed.SourceYouTube) && c.YouTube.APIKey == "" {
		return &ConfigurationError{Field: "YOUTUBE_API_KEY", Reason: "is required when the youtube source is enabled"}
	}

	return nil
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

func parseSources(names []string) ([]feed.Source, error) {
	sources := make([]feed.Source, 0, len(names))
	seen := make(map[feed.Source]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		source, ok := feed.ParseSource(name)
		if !ok {
			return nil, &ConfigurationError{Field: "SOURCES", Reason: fmt.Sprintf("unknown source %q", name)}
		}
		if !seen[source] {
			seen[source] = true
			sources = append(sources, source)
		}
	}
	return sources, nil
}

func sourceNames() []string {
	names := make([]string, len(feed.Sources))
	for i, s := range feed.Sources {
		names[i] = string(s)
	}
	return names
}

// pickList returns the first candidate list with at least one non-blank
// entry, trimmed.
func pickList(candidates ...[]string) []string {
	for _, list := range candidates {
		cleaned := make([]string, 0, len(list))
		for _, v := range list {
			if v = strings.TrimSpace(v); v != "" {
				cleaned = append(cleaned, v)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return nil
}
