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

	"github.com/jmlb/ai-news-engine/app/cfg"
	"github.com/jmlb/ai-news-engine/app/database"
	"github.com/jmlb/ai-news-engine/app/viewer"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	appCfg, err := cfg.LoadViewer()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	if appCfg.Debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	opts := viewer.Options{
		Dir:     appCfg.OutputDir,
		BaseUrl: appCfg.BaseUrl,
		Port:    appCfg.Port,
		Version: appCfg.Version,
	}

	if appCfg.DBPath != "" {
		if _, err := os.Stat(appCfg.DBPath); err == nil {
			db, err := database.Open(appCfg.DBPath)
			if err != nil {
				slog.Warn("Database unavailable, run history disabled", "path", appCfg.DBPath, "error", err)
			} else {
				defer db.Close()
				opts.Runs = database.NewRunRepository(db)
				opts.Items = database.NewItemRepository(db)
			}
		}
	}

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      viewer.NewServer(viewer.NewHandler(opts)),
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting report viewer", "port", appCfg.Port, "reports", appCfg.OutputDir, "version", appCfg.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("Report viewer stopped")
	}
}
