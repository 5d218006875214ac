package feed

import (
	"time"

	"github.com/jmlb/ai-news-engine/app/window"
)

type Source string

const (
	SourceTechCrunch Source = "techcrunch"
	SourceYouTube    Source = "youtube"
	SourceReddit     Source = "reddit"
	SourceMedium     Source = "medium"
)

// Sources lists every source in report order.
var Sources = []Source{SourceTechCrunch, SourceYouTube, SourceReddit, SourceMedium}

func ParseSource(s string) (Source, bool) {
	for _, src := range Sources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// Item is one normalized news entry. Title, Link and Published are always
// set on items that leave a source adapter; everything else is optional.
type Item struct {
	Source      Source
	Title       string
	Link        string
	Published   window.Date
	PublishedAt time.Time // exact instant when the source exposes one
	Topic       string

	Author      string
	Snippet     string
	Image       string
	Channel     string
	Subreddit   string
	Description string
	Transcript  string
	Content     string // self-post body or outbound URL
	Score       int
	Comments    int

	ReadingMinutes int
}
