package medium

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmlb/ai-news-engine/app/render"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

var testNow = time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

type stubSession struct {
	snapshots []string
	articles  map[string]string
	current   int
	page      string
	opened    []string
	scrolls   int
	closed    bool
	openErr   error
}

func (s *stubSession) Open(_ context.Context, u string, _ string) error {
	s.opened = append(s.opened, u)
	if s.openErr != nil {
		return s.openErr
	}
	if strings.Contains(u, "/tag/") {
		s.page = ""
		return nil
	}
	html, ok := s.articles[u]
	if !ok {
		return fmt.Errorf("navigation failed: %s", u)
	}
	s.page = html
	return nil
}

func (s *stubSession) Scroll(context.Context) error {
	s.scrolls++
	if s.current < len(s.snapshots)-1 {
		s.current++
	}
	return nil
}

func (s *stubSession) HTML(context.Context) (string, error) {
	if s.page != "" {
		return s.page, nil
	}
	return s.snapshots[s.current], nil
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

type stubLauncher struct {
	sessions []*stubSession
	launched int
	err      error
}

func (l *stubLauncher) Launch(context.Context) (render.Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	s := l.sessions[l.launched]
	l.launched++
	return s, nil
}

func card(title, href, age, snippet string) string {
	return fmt.Sprintf(`<article>
  <div aria-label="%s"><h2>%s</h2></div>
  <div data-href="%s"><img src="https://miro.medium.com/cover.png"></div>
  <h3>%s</h3>
  <div><span>Jane Doe</span><span>%s</span></div>
</article>`, title, title, href, snippet, age)
}

func page(cards ...string) string {
	return "<html><body>" + strings.Join(cards, "\n") + "</body></html>"
}

func newTestFetcher(launcher render.Launcher, opts Options) *Fetcher {
	opts.Launcher = launcher
	opts.Policy = window.Policy{Now: func() time.Time { return testNow }, Location: time.UTC}
	return NewFetcher(opts)
}

func TestExtractArticle(t *testing.T) {
	html := page(`<article>
  <div aria-label=""></div>
  <h2>Understanding retrieval augmented generation</h2>
  <div data-href="/relative/path"></div>
  <div data-href="https://medium.com/@jane/understanding-rag-123"></div>
  <img src="https://miro.medium.com/avatar.gif">
  <img src="https://miro.medium.com/cover.JPG">
  <h3></h3>
  <h3>How retrieval improves grounded answers</h3>
  <div><span>Jane Doe</span><span>2d ago</span></div>
</article>`)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	base, _ := url.Parse(DefaultBaseURL)
	today := window.NewDate(2024, 3, 10)

	item := ExtractArticle(doc.Find("article").First(), base, today)

	if item.Title != "Understanding retrieval augmented generation" {
		t.Errorf("Expected h2 fallback title, got %q", item.Title)
	}
	if item.Link != "https://medium.com/@jane/understanding-rag-123" {
		t.Errorf("Expected first https link, got %q", item.Link)
	}
	if item.Image != "https://miro.medium.com/cover.JPG" {
		t.Errorf("Expected first jpg/png image, got %q", item.Image)
	}
	if item.Snippet != "How retrieval improves grounded answers" {
		t.Errorf("Expected first non-empty h3, got %q", item.Snippet)
	}
	if !item.Published.Equal(window.NewDate(2024, 3, 8)) {
		t.Errorf("Expected 2024-03-08, got %s", item.Published)
	}
}

func TestExtractArticle_AgeInMixedContent(t *testing.T) {
	html := page(`<article>
  <div aria-label="Agents that write their own tests"></div>
  <div data-href="https://medium.com/p/mixed"></div>
  <h3>Self checking code generation</h3>
  <div><a href="/@jane">Jane</a> · 2d ago</div>
</article>`)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	base, _ := url.Parse(DefaultBaseURL)

	item := ExtractArticle(doc.Find("article").First(), base, window.NewDate(2024, 3, 10))
	if !item.Published.Equal(window.NewDate(2024, 3, 8)) {
		t.Errorf("Expected 2024-03-08 from mixed content, got %q", item.Published)
	}
}

func TestFetcher_DiscardsIncompleteCards(t *testing.T) {
	noSnippet := `<article>
  <div aria-label="Quantized models on edge devices"></div>
  <div data-href="https://medium.com/p/no-snippet"></div>
  <div><span>Jane Doe</span><span>2d ago</span></div>
</article>`
	noTitle := `<article>
  <div data-href="https://medium.com/p/no-title"></div>
  <h3>A card without any heading</h3>
  <div><span>Jane Doe</span><span>2h ago</span></div>
</article>`
	complete := card("Evaluating retrieval pipelines for language models", "https://medium.com/p/complete", "5h ago", "Metrics that matter")

	session := &stubSession{snapshots: []string{page(noSnippet, noTitle, complete)}}
	fetcher := newTestFetcher(&stubLauncher{sessions: []*stubSession{session}}, Options{MaxEmptyScrolls: 1})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"llm"}, DaysBack: 3})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Items) != 1 || result.Items[0].Link != "https://medium.com/p/complete" {
		t.Fatalf("Expected only the complete card, got %+v", result.Items)
	}
	if result.Stats.ExtractionGaps != 2 {
		t.Errorf("Expected 2 extraction gaps, got %d", result.Stats.ExtractionGaps)
	}
	if result.Stats.Retrieved != 3 {
		t.Errorf("Expected 3 retrieved blocks, got %d", result.Stats.Retrieved)
	}
}

func TestFetcher_ScrollsUntilNoNewItems(t *testing.T) {
	first := card("How large language models learn from feedback", "https://medium.com/p/a1", "3h ago", "Reinforcement learning from human feedback explained")
	second := card("Building a local AI assistant with open models", "https://medium.com/p/a2", "1d ago", "A practical guide to running models on your laptop")
	old := card("What I learned about neural networks last month", "https://medium.com/p/a3", "9d ago", "A look back at some experiments")

	session := &stubSession{snapshots: []string{
		page(first),
		page(first, second),
		page(first, second, old),
	}}
	fetcher := newTestFetcher(&stubLauncher{sessions: []*stubSession{session}}, Options{MaxEmptyScrolls: 2})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"artificial-intelligence"}, DaysBack: 1})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].Link != "https://medium.com/p/a1" || result.Items[1].Link != "https://medium.com/p/a2" {
		t.Errorf("Unexpected items: %+v", result.Items)
	}
	if result.Items[0].Topic != "artificial-intelligence" {
		t.Errorf("Expected tag as topic, got %q", result.Items[0].Topic)
	}
	if result.Items[0].Image != "https://miro.medium.com/cover.png" {
		t.Errorf("Expected image, got %q", result.Items[0].Image)
	}

	if result.Stats.Retrieved != 3 {
		t.Errorf("Expected each block counted once, got %d", result.Stats.Retrieved)
	}
	if result.Stats.OutOfWindow != 1 {
		t.Errorf("Expected 1 out-of-window drop, got %d", result.Stats.OutOfWindow)
	}
	if !session.closed {
		t.Error("Expected session to be closed")
	}
	if session.opened[0] != "https://medium.com/tag/artificial-intelligence/archive" {
		t.Errorf("Unexpected archive URL %s", session.opened[0])
	}
	// 3 snapshots, the last one adds nothing, then one more empty pass.
	if session.scrolls != 3 {
		t.Errorf("Expected 3 scrolls, got %d", session.scrolls)
	}
}

func TestFetcher_StopsAtMaxScrolls(t *testing.T) {
	snapshots := make([]string, 0, 10)
	var cards []string
	for i := range 10 {
		cards = append(cards, card(
			fmt.Sprintf("Practical notes on machine learning systems part %d", i),
			fmt.Sprintf("https://medium.com/p/m%d", i), "5h ago",
			"Lessons from deploying models in production"))
		snapshots = append(snapshots, page(cards...))
	}

	session := &stubSession{snapshots: snapshots}
	fetcher := newTestFetcher(&stubLauncher{sessions: []*stubSession{session}}, Options{MaxScrolls: 4})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"machine-learning"}, DaysBack: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 4 {
		t.Errorf("Expected 4 items after 4 passes, got %d", len(result.Items))
	}
	if session.scrolls != 3 {
		t.Errorf("Expected 3 scrolls, got %d", session.scrolls)
	}
}

func TestFetcher_DropsNonEnglishAndOffTopic(t *testing.T) {
	session := &stubSession{snapshots: []string{page(
		card("La inteligencia artificial está cambiando la forma en que trabajamos cada día", "https://medium.com/p/es", "2h ago", "Una guía práctica"),
		card("My favourite sourdough bread recipe for cold winter mornings", "https://medium.com/p/bread", "2h ago", "Flour water and patience"),
		card("Why AI agents need better evaluation before production", "https://medium.com/p/agents", "2h ago", "Evaluating agent workflows"),
	)}}
	fetcher := newTestFetcher(&stubLauncher{sessions: []*stubSession{session}}, Options{
		MaxEmptyScrolls: 1,
		Keywords:        []string{"AI", "inteligencia"},
	})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"ai"}, DaysBack: 1})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Items) != 1 || result.Items[0].Link != "https://medium.com/p/agents" {
		t.Fatalf("Expected only the English AI article, got %+v", result.Items)
	}
	if result.Stats.OffLanguage != 1 {
		t.Errorf("Expected 1 off-language drop, got %d", result.Stats.OffLanguage)
	}
	if result.Stats.OffTopic != 1 {
		t.Errorf("Expected 1 off-topic drop, got %d", result.Stats.OffTopic)
	}
}

func TestFetcher_LaunchFailureSkipsTag(t *testing.T) {
	launcher := &stubLauncher{err: errors.New("browser not found")}
	fetcher := newTestFetcher(launcher, Options{})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"ai", "llm"}, DaysBack: 1})
	if err != nil {
		t.Fatalf("Expected failure to be absorbed, got: %v", err)
	}
	if result.Stats.FailedTopics != 2 {
		t.Errorf("Expected 2 failed topics, got %d", result.Stats.FailedTopics)
	}
	if len(result.Items) != 0 {
		t.Errorf("Expected no items, got %d", len(result.Items))
	}
}

func TestFetcher_ValidateTags(t *testing.T) {
	session := &stubSession{
		snapshots: []string{page(
			card("Fine tuning language models on a single graphics card", "https://medium.com/p/keep", "2h ago", "Memory tricks"),
			card("Prompt engineering patterns for reliable outputs", "https://medium.com/p/drop", "2h ago", "Structured prompting"),
			card("Scaling inference for large language models cheaply", "https://medium.com/p/broken", "2h ago", "Batching and caching"),
		)},
		articles: map[string]string{
			"https://medium.com/p/keep": `<html><body>
  <a href="https://medium.com/tag/llm?source=post">LLM</a>
  <a href="https://medium.com/tag/machine-learning">Machine Learning</a>
  <a href="https://medium.com/tag/gpu">GPU</a>
</body></html>`,
			"https://medium.com/p/drop": `<html><body>
  <a href="https://medium.com/tag/llm">LLM</a>
  <a href="https://medium.com/tag/llm">LLM</a>
  <a href="https://medium.com/tag/writing">Writing</a>
</body></html>`,
		},
	}
	fetcher := newTestFetcher(&stubLauncher{sessions: []*stubSession{session}}, Options{
		MaxEmptyScrolls: 1,
		ValidateTags:    true,
		RelatedTags:     []string{"machine-learning", "deep-learning"},
	})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"llm"}, DaysBack: 1})
	if err != nil {
		t.Fatal(err)
	}

	links := make(map[string]bool)
	for _, item := range result.Items {
		links[item.Link] = true
	}
	if !links["https://medium.com/p/keep"] {
		t.Error("Expected article with two accepted tags to be kept")
	}
	if links["https://medium.com/p/drop"] {
		t.Error("Expected article with one accepted tag to be dropped")
	}
	if !links["https://medium.com/p/broken"] {
		t.Error("Expected article that failed to load to be kept")
	}
}

func TestCountAcceptedTags(t *testing.T) {
	html := `<a href="/tag/AI">AI</a><a href="/tag/ai/archive">AI</a><a href="/tag/llm#x">LLM</a><a href="/tag/other">x</a>`
	accepted := map[string]bool{"ai": true, "llm": true}
	if got := CountAcceptedTags(html, accepted); got != 2 {
		t.Errorf("Expected 2 distinct accepted tags, got %d", got)
	}
}
