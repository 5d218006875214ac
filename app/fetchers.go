package main

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/jmlb/ai-news-engine/app/cache"
	"github.com/jmlb/ai-news-engine/app/cfg"
	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/pipeline"
	"github.com/jmlb/ai-news-engine/app/render"
	"github.com/jmlb/ai-news-engine/app/sources/medium"
	"github.com/jmlb/ai-news-engine/app/sources/reddit"
	"github.com/jmlb/ai-news-engine/app/sources/techcrunch"
	ytsource "github.com/jmlb/ai-news-engine/app/sources/youtube"
	"github.com/jmlb/ai-news-engine/app/window"
)

// buildSources creates an adapter for every enabled source, in report
// order.
func buildSources(ctx context.Context, appCfg *cfg.Cfg, httpClient *http.Client, policy window.Policy, redisCache *cache.Cache) ([]pipeline.Source, error) {
	filterer := feed.NewFilterer()
	var result []pipeline.Source

	for _, source := range feed.Sources {
		if !appCfg.Enabled(source) {
			continue
		}

		switch source {
		case feed.SourceTechCrunch:
			result = append(result, pipeline.Source{
				Fetcher: techcrunch.NewFetcher(techcrunch.Options{
					HTTPClient: httpClient,
					PageURL:    appCfg.TechCrunch.URL,
					UserAgent:  appCfg.UserAgent,
					Timeout:    appCfg.RequestTimeout,
					Policy:     policy,
					Filterer:   filterer,
					Keywords:   appCfg.TechCrunch.Keywords,
				}),
			})

		case feed.SourceYouTube:
			service, err := youtube.NewService(ctx, option.WithAPIKey(appCfg.YouTube.APIKey))
			if err != nil {
				return nil, fmt.Errorf("failed to create YouTube client: %w", err)
			}

			opts := ytsource.Options{
				Service:    service,
				HTTPClient: httpClient,
				Channels:   appCfg.YouTube.Channels,
				Timeout:    appCfg.RequestTimeout,
				Policy:     policy,
				Filterer:   filterer,
				Keywords:   appCfg.YouTube.Keywords,
			}
			if redisCache != nil {
				opts.Cache = redisCache
			}

			result = append(result, pipeline.Source{
				Fetcher: ytsource.NewFetcher(opts),
				Topics:  appCfg.YouTube.Topics,
			})

		case feed.SourceReddit:
			result = append(result, pipeline.Source{
				Fetcher: reddit.NewFetcher(reddit.Options{
					ClientID:     appCfg.Reddit.ClientID,
					ClientSecret: appCfg.Reddit.ClientSecret,
					UserAgent:    appCfg.Reddit.UserAgent,
					HTTPClient:   httpClient,
					PageLimit:    appCfg.Reddit.PageLimit,
					Timeout:      appCfg.RequestTimeout,
					Policy:       policy,
					Filterer:     filterer,
					Keywords:     appCfg.Reddit.Keywords,
				}),
				Topics: appCfg.Reddit.Subreddits,
			})

		case feed.SourceMedium:
			result = append(result, pipeline.Source{
				Fetcher: medium.NewFetcher(medium.Options{
					Launcher:        newLauncher(appCfg, httpClient),
					ScrollDelay:     appCfg.Medium.ScrollDelay,
					MaxEmptyScrolls: appCfg.Medium.MaxEmptyScrolls,
					MaxScrolls:      appCfg.Medium.MaxScrolls,
					ValidateTags:    appCfg.Medium.ValidateTags,
					RelatedTags:     appCfg.Medium.RelatedTags,
					Policy:          policy,
					Filterer:        filterer,
					Keywords:        appCfg.Medium.Keywords,
				}),
				Topics: appCfg.Medium.Topics,
			})
		}
	}

	return result, nil
}

func newLauncher(appCfg *cfg.Cfg, httpClient *http.Client) render.Launcher {
	if appCfg.Browser == "http" {
		return render.NewHTTPLauncher(httpClient, appCfg.UserAgent, appCfg.RequestTimeout)
	}
	return render.NewChromeLauncher(appCfg.UserAgent, appCfg.RequestTimeout)
}
