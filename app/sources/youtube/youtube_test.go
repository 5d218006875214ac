package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/jmlb/ai-news-engine/app/cache"
	"github.com/jmlb/ai-news-engine/app/sources"
	"github.com/jmlb/ai-news-engine/app/window"
)

var testNow = time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

type fakeYouTube struct {
	server          *httptest.Server
	searchQueries   []string
	publishedAfter  string
	videosCalls     atomic.Int32
	transcriptCalls atomic.Int32
}

func searchResult(id, title, published string) map[string]any {
	return map[string]any{
		"id": map[string]any{"kind": "youtube#video", "videoId": id},
		"snippet": map[string]any{
			"title":        title,
			"channelTitle": "AI Explained",
			"description":  "short description",
			"publishedAt":  published,
		},
	}
}

func newFakeYouTube(t *testing.T) *fakeYouTube {
	t.Helper()
	f := &fakeYouTube{}

	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f.searchQueries = append(f.searchQueries, q.Get("q"))
		f.publishedAfter = q.Get("publishedAfter")

		if q.Get("type") != "video" || q.Get("order") != "date" || q.Get("relevanceLanguage") != "en" {
			t.Errorf("Unexpected search parameters: %s", r.URL.RawQuery)
		}

		var items []map[string]any
		switch q.Get("q") {
		case "LLM":
			items = []map[string]any{
				searchResult("v1", "Fine-tuning Llama &amp; friends", "2024-03-10T08:00:00Z"),
				searchResult("v2", "LLM agents explained", "2024-03-09T12:00:00Z"),
			}
		case "AI tools":
			items = []map[string]any{
				searchResult("v1", "Fine-tuning Llama &amp; friends", "2024-03-10T08:00:00Z"),
				searchResult("v3", "Ten AI tools you should know", "2024-03-10T10:00:00Z"),
			}
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":500,"message":"backend error"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		f.videosCalls.Add(1)
		var items []map[string]any
		for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
			if id == "" {
				continue
			}
			items = append(items, map[string]any{
				"id":      id,
				"snippet": map[string]any{"description": "full description of " + id},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		f.transcriptCalls.Add(1)
		if r.URL.Query().Get("v") == "v2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?><transcript><text start="0" dur="2">Hello and welcome</text><text start="2" dur="3">today we&amp;#39;re talking LLMs</text></transcript>`))
	})
	mux.HandleFunc("/feeds/videos.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Channel Feed</title>
  <entry>
    <title>Building with large language models</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=c1"/>
    <author><name>Channel Feed</name></author>
    <published>2024-03-10T11:00:00+00:00</published>
  </entry>
  <entry>
    <title>Ten AI tools you should know</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=v3"/>
    <published>2024-03-10T10:00:00+00:00</published>
  </entry>
  <entry>
    <title>An old upload</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=c0"/>
    <published>2024-03-01T10:00:00+00:00</published>
  </entry>
</feed>`))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeYouTube) fetcher(t *testing.T, opts Options) *Fetcher {
	t.Helper()
	svc, err := youtube.NewService(context.Background(),
		option.WithEndpoint(f.server.URL+"/"),
		option.WithHTTPClient(f.server.Client()))
	if err != nil {
		t.Fatal(err)
	}

	opts.Service = svc
	opts.HTTPClient = f.server.Client()
	opts.TranscriptURL = f.server.URL + "/api/timedtext"
	opts.FeedURL = f.server.URL + "/feeds/videos.xml"
	opts.Timeout = 5 * time.Second
	opts.Policy = window.Policy{Now: func() time.Time { return testNow }, Location: time.UTC}
	return NewFetcher(opts)
}

func TestFetcher_SearchDedupesAndSorts(t *testing.T) {
	fake := newFakeYouTube(t)
	fetcher := fake.fetcher(t, Options{})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"LLM", "AI tools"}, DaysBack: 1})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(result.Items) != 3 {
		t.Fatalf("Expected 3 unique videos, got %d", len(result.Items))
	}

	expectedOrder := []string{"v3", "v1", "v2"}
	for i, id := range expectedOrder {
		if result.Items[i].Link != "https://www.youtube.com/watch?v="+id {
			t.Errorf("Position %d: expected %s, got %s", i, id, result.Items[i].Link)
		}
	}

	v1 := result.Items[1]
	if v1.Topic != "LLM" {
		t.Errorf("Expected first topic to win for duplicated video, got %q", v1.Topic)
	}
	if v1.Title != "Fine-tuning Llama & friends" {
		t.Errorf("Expected unescaped title, got %q", v1.Title)
	}
	if v1.Channel != "AI Explained" {
		t.Errorf("Unexpected channel %q", v1.Channel)
	}
	if v1.Description != "full description of v1" {
		t.Errorf("Expected full description, got %q", v1.Description)
	}
	if v1.Transcript != "Hello and welcome today we're talking LLMs" {
		t.Errorf("Unexpected transcript %q", v1.Transcript)
	}
	if !v1.PublishedAt.Equal(time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected published instant %s", v1.PublishedAt)
	}

	if result.Items[2].Transcript != "" {
		t.Errorf("Expected missing transcript to stay empty, got %q", result.Items[2].Transcript)
	}

	if fake.publishedAfter != "2024-03-09T00:00:00Z" {
		t.Errorf("Expected publishedAfter at cutoff midnight, got %s", fake.publishedAfter)
	}
	if got := fake.videosCalls.Load(); got != 1 {
		t.Errorf("Expected a single batched videos.list call, got %d", got)
	}
}

func TestFetcher_SearchFailureSkipsTopic(t *testing.T) {
	fake := newFakeYouTube(t)
	fetcher := fake.fetcher(t, Options{SkipTranscripts: true})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"broken", "LLM"}, DaysBack: 1})
	if err != nil {
		t.Fatalf("Expected failure to be absorbed, got: %v", err)
	}
	if result.Stats.FailedTopics != 1 {
		t.Errorf("Expected 1 failed topic, got %d", result.Stats.FailedTopics)
	}
	if len(result.Items) != 2 {
		t.Errorf("Expected items from the healthy topic, got %d", len(result.Items))
	}
	if got := fake.transcriptCalls.Load(); got != 0 {
		t.Errorf("Expected no transcript requests, got %d", got)
	}
}

func TestFetcher_ChannelFeeds(t *testing.T) {
	fake := newFakeYouTube(t)
	fetcher := fake.fetcher(t, Options{
		Channels:        []string{"UC123"},
		SkipTranscripts: true,
	})

	result, err := fetcher.Fetch(context.Background(), sources.Query{Topics: []string{"AI tools"}, DaysBack: 1})
	if err != nil {
		t.Fatal(err)
	}

	links := make(map[string]int)
	for _, item := range result.Items {
		links[item.Link]++
	}

	if links["https://www.youtube.com/watch?v=c1"] != 1 {
		t.Error("Expected channel upload to be included")
	}
	if links["https://www.youtube.com/watch?v=v3"] != 1 {
		t.Errorf("Expected duplicate video to appear once, got %d", links["https://www.youtube.com/watch?v=v3"])
	}
	if links["https://www.youtube.com/watch?v=c0"] != 0 {
		t.Error("Expected old channel upload to be excluded")
	}
	if result.Items[0].Link != "https://www.youtube.com/watch?v=c1" {
		t.Errorf("Expected newest video first, got %s", result.Items[0].Link)
	}
}

func TestFetcher_CachesSecondaryLookups(t *testing.T) {
	fake := newFakeYouTube(t)
	mr := miniredis.RunT(t)

	c, err := cache.NewCache(context.Background(), mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fetcher := fake.fetcher(t, Options{Cache: c})
	query := sources.Query{Topics: []string{"LLM"}, DaysBack: 1}

	if _, err := fetcher.Fetch(context.Background(), query); err != nil {
		t.Fatal(err)
	}
	videosAfterFirst := fake.videosCalls.Load()
	transcriptsAfterFirst := fake.transcriptCalls.Load()

	result, err := fetcher.Fetch(context.Background(), query)
	if err != nil {
		t.Fatal(err)
	}

	if fake.videosCalls.Load() != videosAfterFirst {
		t.Error("Expected cached descriptions to skip videos.list")
	}
	// v2 has no transcript, so only it is requested again.
	if got := fake.transcriptCalls.Load() - transcriptsAfterFirst; got != 1 {
		t.Errorf("Expected 1 transcript request on the second run, got %d", got)
	}
	if result.Items[0].Description != "full description of v1" {
		t.Errorf("Expected cached description, got %q", result.Items[0].Description)
	}
}
