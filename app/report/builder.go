// Package report renders the daily digest as markdown and writes it to the
// output directory.
package report

import (
	"bytes"
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/window"
)

const missing = "n/a"

// Sections holds the items of each source. Sources without an entry still
// get a section header.
type Sections map[feed.Source][]feed.Item

var sectionTitles = map[feed.Source]string{
	feed.SourceTechCrunch: "TechCrunch Articles",
	feed.SourceYouTube:    "YouTube Videos",
	feed.SourceReddit:     "Reddit Posts",
	feed.SourceMedium:     "Medium.com Posts",
}

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders the digest for date. Sections always appear in the order
// of feed.Sources.
func (b *Builder) Build(date window.Date, sections Sections) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# AI News Summary - %s\n", date)

	for _, source := range feed.Sources {
		buf.WriteString("\n## ")
		buf.WriteString(sectionTitles[source])
		buf.WriteString("\n")

		items := sections[source]
		for i, item := range items {
			if i > 0 {
				buf.WriteString("\n")
			}
			b.writeItem(&buf, item)
		}
	}

	return buf.Bytes()
}

func (b *Builder) writeItem(buf *bytes.Buffer, item feed.Item) {
	fmt.Fprintf(buf, "- [%s](%s)\n", escapeLinkText(item.Title), item.Link)

	switch item.Source {
	case feed.SourceTechCrunch:
		b.writeField(buf, "Author", item.Author)
		b.writeField(buf, "Date", dateString(item.Published))
		b.writeField(buf, "Excerpt", item.Snippet)
	case feed.SourceYouTube:
		b.writeField(buf, "Channel", item.Channel)
		b.writeField(buf, "Topic", item.Topic)
		b.writeField(buf, "Published", instantString(item))
	case feed.SourceReddit:
		b.writeField(buf, "Subreddit", prefixed("r/", item.Subreddit))
		b.writeField(buf, "Author", prefixed("u/", item.Author))
		b.writeField(buf, "Score", strconv.Itoa(item.Score))
		b.writeField(buf, "Comments", strconv.Itoa(item.Comments))
		b.writeField(buf, "Date", dateString(item.Published))
	case feed.SourceMedium:
		b.writeField(buf, "Topic", item.Topic)
		b.writeField(buf, "Date", dateString(item.Published))
		b.writeField(buf, "Excerpt", item.Snippet)
	}

	if item.ReadingMinutes > 0 {
		b.writeField(buf, "Reading time", fmt.Sprintf("%d min", item.ReadingMinutes))
	}

	if item.Source == feed.SourceMedium && item.Image != "" {
		fmt.Fprintf(buf, "  ![Article Image](%s)\n", item.Image)
	}
}

func (b *Builder) writeField(buf *bytes.Buffer, label, value string) {
	buf.WriteString("  - ")
	buf.WriteString(label)
	buf.WriteString(": ")
	buf.WriteString(cmp.Or(strings.TrimSpace(value), missing))
	buf.WriteString("\n")
}

func dateString(d window.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func instantString(item feed.Item) string {
	if !item.PublishedAt.IsZero() {
		return item.PublishedAt.UTC().Format(time.RFC3339)
	}
	return dateString(item.Published)
}

func prefixed(prefix, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return prefix + value
}

// escapeLinkText keeps brackets in titles from closing the link early.
func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}
