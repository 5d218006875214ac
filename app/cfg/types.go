package cfg

import (
	"fmt"
	"time"

	"github.com/jmlb/ai-news-engine/app/feed"
)

// ConfigurationError is a fatal problem with the run configuration detected
// before any source is contacted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

type RedditCfg struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Subreddits   []string
	Keywords     []string
	PageLimit    int
}

type YouTubeCfg struct {
	APIKey   string
	Topics   []string
	Channels []string
	Keywords []string
}

type TechCrunchCfg struct {
	URL      string
	Keywords []string
}

type MediumCfg struct {
	Topics          []string
	RelatedTags     []string
	Keywords        []string
	ValidateTags    bool
	ScrollDelay     time.Duration
	MaxEmptyScrolls int
	MaxScrolls      int
}

type Cfg struct {
	Sources []feed.Source

	Reddit     RedditCfg
	YouTube    YouTubeCfg
	TechCrunch TechCrunchCfg
	Medium     MediumCfg

	DaysBack       int
	OutputDir      string
	DBPath         string
	RedisAddr      string
	Browser        string
	RequestTimeout time.Duration
	ExtractContent bool
	DailyAt        string
	RunNow         bool

	// Viewer
	Port    string
	BaseUrl string

	UserAgent string
	Timezone  string
	Location  *time.Location
	Debug     bool
	Version   string
}

func (c *Cfg) Enabled(source feed.Source) bool {
	for _, s := range c.Sources {
		if s == source {
			return true
		}
	}
	return false
}
