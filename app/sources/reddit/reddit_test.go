package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

var testNow = time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

func child(title, permalink, author string, created time.Time, isSelf bool) map[string]any {
	return map[string]any{
		"kind": "t3",
		"data": map[string]any{
			"title":        title,
			"permalink":    permalink,
			"author":       author,
			"subreddit":    "OpenAI",
			"selftext":     "body of " + title,
			"url":          "https://example.com/" + title,
			"is_self":      isSelf,
			"score":        42,
			"num_comments": 7,
			"created_utc":  float64(created.Unix()),
		},
	}
}

type fakeReddit struct {
	server       *httptest.Server
	listingCalls atomic.Int32
	tokenCalls   atomic.Int32
	pages        map[string][]map[string]any // keyed by "after" value
	subPages     map[string][]map[string]any // keyed by subreddit, first page only
	afters       map[string]string
	failListing  bool
}

func newFakeReddit(t *testing.T) *fakeReddit {
	t.Helper()
	f := &fakeReddit{
		pages:    map[string][]map[string]any{},
		subPages: map[string][]map[string]any{},
		afters:   map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if r.Header.Get("User-Agent") != "test-agent/1.0" {
			t.Errorf("Expected User-Agent on token request, got %q", r.Header.Get("User-Agent"))
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "id" || pass != "secret" {
			t.Errorf("Expected basic auth with client credentials")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		f.listingCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("User-Agent") != "test-agent/1.0" {
			t.Errorf("Expected User-Agent on listing request, got %q", r.Header.Get("User-Agent"))
		}
		if f.failListing {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		after := r.URL.Query().Get("after")
		if page, ok := f.subPages[strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/r/"), "/new")]; ok {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"children": page}})
			return
		}
		body := map[string]any{
			"data": map[string]any{
				"after":    f.afters[after],
				"children": f.pages[after],
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeReddit) fetcher() *Fetcher {
	return NewFetcher(Options{
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "test-agent/1.0",
		TokenURL:     f.server.URL + "/api/v1/access_token",
		APIURL:       f.server.URL,
		HTTPClient:   f.server.Client(),
		Limiter:      rate.NewLimiter(rate.Inf, 1),
		Timeout:      5 * time.Second,
		Policy:       window.Policy{Now: func() time.Time { return testNow }, Location: time.UTC},
	})
}

func TestFetcher_PagesUntilCutoff(t *testing.T) {
	fake := newFakeReddit(t)
	fake.pages[""] = []map[string]any{
		child("newest", "/r/OpenAI/comments/1/newest/", "alice", testNow.Add(-1*time.Hour), true),
		child("middle", "/r/OpenAI/comments/2/middle/", "", testNow.Add(-3*time.Hour), false),
	}
	fake.afters[""] = "t3_2"
	fake.pages["t3_2"] = []map[string]any{
		child("yesterday", "/r/OpenAI/comments/3/yesterday/", "bob", testNow.Add(-20*time.Hour), true),
		child("too old", "/r/OpenAI/comments/4/old/", "carol", testNow.Add(-60*time.Hour), true),
		child("never seen", "/r/OpenAI/comments/5/never/", "dave", testNow.Add(-1*time.Hour), true),
	}
	fake.afters["t3_2"] = "t3_5"
	fake.pages["t3_5"] = []map[string]any{
		child("page three", "/r/OpenAI/comments/6/three/", "erin", testNow.Add(-1*time.Hour), true),
	}

	result, err := fake.fetcher().Fetch(context.Background(), sources.Query{Topics: []string{"OpenAI"}, DaysBack: 1})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := fake.listingCalls.Load(); got != 2 {
		t.Errorf("Expected 2 listing requests before the short-circuit, got %d", got)
	}
	if len(result.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(result.Items))
	}

	first := result.Items[0]
	if first.Title != "newest" {
		t.Errorf("Expected newest first, got %q", first.Title)
	}
	if first.Link != "https://www.reddit.com/r/OpenAI/comments/1/newest/" {
		t.Errorf("Unexpected link %s", first.Link)
	}
	if first.Content != "body of newest" {
		t.Errorf("Expected self post body as content, got %q", first.Content)
	}
	if first.Score != 42 || first.Comments != 7 {
		t.Errorf("Unexpected score/comments %d/%d", first.Score, first.Comments)
	}
	if first.Subreddit != "OpenAI" {
		t.Errorf("Unexpected subreddit %q", first.Subreddit)
	}

	middle := result.Items[1]
	if middle.Author != "[deleted]" {
		t.Errorf("Expected deleted author placeholder, got %q", middle.Author)
	}
	if middle.Content != "https://example.com/middle" {
		t.Errorf("Expected outbound URL as content, got %q", middle.Content)
	}

	if result.Items[2].Published.String() != "2024-03-09" {
		t.Errorf("Expected yesterday's post dated 2024-03-09, got %s", result.Items[2].Published)
	}

	if result.Stats.OutOfWindow != 1 {
		t.Errorf("Expected 1 out-of-window post, got %d", result.Stats.OutOfWindow)
	}
}

func TestFetcher_SortsAcrossSubreddits(t *testing.T) {
	fake := newFakeReddit(t)
	fake.subPages["OpenAI"] = []map[string]any{
		child("older", "/r/OpenAI/comments/1/older/", "a", testNow.Add(-2*time.Hour), true),
	}
	fake.subPages["LocalLLaMA"] = []map[string]any{
		child("newer", "/r/LocalLLaMA/comments/2/newer/", "b", testNow.Add(-30*time.Minute), true),
	}

	result, err := fake.fetcher().Fetch(context.Background(), sources.Query{Topics: []string{"OpenAI", "LocalLLaMA"}, DaysBack: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].Topic != "LocalLLaMA" {
		t.Errorf("Expected most recent post first, got topic %s", result.Items[0].Topic)
	}
}

func TestFetcher_RetrievalFailureSkipsTopic(t *testing.T) {
	fake := newFakeReddit(t)
	fake.failListing = true

	result, err := fake.fetcher().Fetch(context.Background(), sources.Query{Topics: []string{"OpenAI", "GPT3"}, DaysBack: 1})
	if err != nil {
		t.Fatalf("Expected failures to be absorbed, got: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("Expected no items, got %d", len(result.Items))
	}
	if result.Stats.FailedTopics != 2 {
		t.Errorf("Expected 2 failed topics, got %d", result.Stats.FailedTopics)
	}
}

func TestFetcher_TokenReused(t *testing.T) {
	fake := newFakeReddit(t)
	fake.pages[""] = []map[string]any{
		child("one", "/r/OpenAI/comments/1/one/", "alice", testNow.Add(-time.Hour), true),
	}

	fetcher := fake.fetcher()
	for i := 0; i < 2; i++ {
		if _, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"OpenAI"}, DaysBack: 1}); err != nil {
			t.Fatal(err)
		}
	}

	if got := fake.tokenCalls.Load(); got != 1 {
		t.Errorf("Expected token to be fetched once, got %d", got)
	}
}
