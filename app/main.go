package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmlb/ai-news-engine/app/cache"
	"github.com/jmlb/ai-news-engine/app/cfg"
	"github.com/jmlb/ai-news-engine/app/database"
	"github.com/jmlb/ai-news-engine/app/feed"
	"github.com/jmlb/ai-news-engine/app/pipeline"
	"github.com/jmlb/ai-news-engine/app/tasks"
	"github.com/jmlb/ai-news-engine/app/window"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		setupLogger(false)
		var cfgErr *cfg.ConfigurationError
		if errors.As(err, &cfgErr) {
			slog.Error("Invalid configuration", "field", cfgErr.Field, "reason", cfgErr.Reason)
		} else {
			slog.Error("Failed to load configuration", "error", err)
		}
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, appCfg); err != nil {
		slog.Error("AI news digest failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(ctx context.Context, appCfg *cfg.Cfg) error {
	slog.Info("Starting AI news digest",
		"version", appCfg.Version,
		"sources", appCfg.Sources,
		"days_back", appCfg.DaysBack,
		"timezone", appCfg.Location.String(),
		"output_dir", appCfg.OutputDir)

	httpClient := &http.Client{Timeout: appCfg.RequestTimeout}

	opts := pipeline.Options{
		DaysBack:  appCfg.DaysBack,
		Policy:    window.NewPolicy(appCfg.Location),
		OutputDir: appCfg.OutputDir,
	}

	if appCfg.DBPath != "" {
		db, err := database.Open(appCfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer db.Close()

		opts.Items = database.NewItemRepository(db)
		opts.Runs = database.NewRunRepository(db)
	}

	var redisCache *cache.Cache
	if appCfg.RedisAddr != "" {
		c, err := cache.NewCache(ctx, appCfg.RedisAddr)
		if err != nil {
			slog.Warn("Redis unavailable, continuing without cache", "addr", appCfg.RedisAddr, "error", err)
		} else {
			redisCache = c
			defer redisCache.Close()
		}
	}

	if appCfg.ExtractContent {
		opts.Enricher = feed.NewEnricher(httpClient, appCfg.UserAgent, appCfg.RequestTimeout)
	}

	sources, err := buildSources(ctx, appCfg, httpClient, opts.Policy, redisCache)
	if err != nil {
		return err
	}
	opts.Sources = sources

	digest := pipeline.NewPipeline(opts)

	if appCfg.DailyAt == "" {
		_, err := digest.Run(ctx)
		return err
	}

	hour, minute, err := cfg.ParseClock(appCfg.DailyAt)
	if err != nil {
		return err
	}

	var scheduler tasks.TaskSchedulerInterface = tasks.NewScheduler(digest, hour, minute, appCfg.Location, 0)
	scheduler.Start()

	slog.Info("Daily scheduler started", "daily_at", appCfg.DailyAt, "timezone", appCfg.Location.String())

	if appCfg.RunNow {
		if err := scheduler.EnqueueTask(tasks.NewDigestTask(digest, time.Time{})); err != nil {
			slog.Warn("Failed to enqueue immediate digest", "error", err)
		}
	}

	<-ctx.Done()

	slog.Info("Shutting down scheduler...")
	shutdownStart := time.Now()
	scheduler.Stop()
	slog.Info("Scheduler stopped", "duration", time.Since(shutdownStart).String())

	return nil
}
