package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-digest/app/api"
	"github.com/lysyi3m/rss-digest/app/bootstrap"
	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/logging"
	"github.com/lysyi3m/rss-digest/app/tasks"
)

func main() {
	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logging.Setup(appCfg.Debug)

	slog.Info("Starting RSS Digest server", "version", appCfg.Version, "db_file", appCfg.DBFile)

	app, err := bootstrap.New(appCfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	seeded, err := app.Sources.SeedIfEmpty(context.Background())
	if err != nil {
		slog.Error("Failed to seed default sources", "error", err)
	} else if seeded > 0 {
		slog.Info("Seeded default sources", "count", seeded)
	}

	hour, minute, err := appCfg.DigestClock()
	if err != nil {
		log.Fatal(err)
	}

	slog.Info("Starting background scheduler",
		"workers", appCfg.WorkerCount,
		"poll_interval", fmt.Sprintf("%ds", appCfg.SchedulerInterval),
		"digest_time", appCfg.DigestTime,
		"timezone", appCfg.Location().String())
	scheduler := tasks.NewScheduler(app.Sources, app.Digests, tasks.Config{
		PollInterval: time.Duration(appCfg.SchedulerInterval) * time.Second,
		WorkerCount:  appCfg.WorkerCount,
		DigestHour:   hour,
		DigestMinute: minute,
		Location:     appCfg.Location(),
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(app.Sources, app.Items, app.Enricher, app.Digests, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // summarize and digest runs call out to the AI endpoint
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if appCfg.APIAccessKey == "" {
			slog.Warn("API_ACCESS_KEY not set, /api endpoints are unauthenticated")
		}

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("RSS Digest server shutdown complete")
}
