package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"

	"github.com/jmlb/ai-news-engine/app/window"
)

var unicodeEscape = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// DecodeEscapes turns literal \uXXXX sequences left over from embedded
// JSON into the characters they name.
func DecodeEscapes(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}
	return unicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
		code, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(code))
	})
}

// CleanText decodes escapes, applies NFC and collapses whitespace.
func CleanText(s string) string {
	s = norm.NFC.String(DecodeEscapes(s))
	return strings.Join(strings.Fields(s), " ")
}

// IsAbsoluteURL reports whether link is an http(s) URL with a host.
func IsAbsoluteURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Normalize cleans the text fields of item and reports whether it satisfies
// the minimum record contract: a title, an absolute link and a date.
func Normalize(item Item) (Item, bool) {
	item.Title = CleanText(item.Title)
	item.Snippet = CleanText(item.Snippet)
	item.Author = strings.TrimSpace(item.Author)
	item.Link = strings.TrimSpace(item.Link)

	if item.Title == "" || !IsAbsoluteURL(item.Link) || item.Published.IsZero() {
		return item, false
	}
	return item, true
}

// Parser turns RSS/Atom documents into items.
type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses data and returns one item per entry carrying a publication
// time. Day boundaries are computed in policy's location.
func (p *Parser) Run(data []byte, source Source, topic string, policy window.Policy) ([]Item, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		item := Item{
			Source:  source,
			Title:   entry.Title,
			Link:    entry.Link,
			Topic:   topic,
			Channel: parsed.Title,
			Snippet: entry.Description,
		}

		published := entry.PublishedParsed
		if published == nil {
			published = entry.UpdatedParsed
		}
		if published != nil {
			item.PublishedAt = published.UTC()
			item.Published = window.DateOf(*published, policy.Location)
		}

		if author := p.extractAuthor(entry); author != "" {
			item.Author = author
		}
		item.Channel = cmp.Or(item.Channel, item.Author)

		items = append(items, item)
	}

	return items, nil
}

func (p *Parser) extractAuthor(entry *gofeed.Item) string {
	for _, author := range entry.Authors {
		if author != nil && strings.TrimSpace(author.Name) != "" {
			return strings.TrimSpace(author.Name)
		}
	}
	if entry.Author != nil {
		return strings.TrimSpace(entry.Author.Name)
	}
	return ""
}
