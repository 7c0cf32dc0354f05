package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cambio_go/internal/app"
	"cambio_go/internal/domain"
	"cambio_go/internal/service"
	"cambio_go/internal/shell"
	"cambio_go/internal/source"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// Try to load .env file
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, will use OS environment variables")
	}

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Background Asset Sync (Simulating Loading Screen logic)
	go bootstrap.SyncAssets(ctx)

	// 5. Aggregation Engine
	sources := source.Registry(source.Endpoints{
		OpenERAPI:       cfg.Sources.OpenERAPI.URL,
		ExchangeRateAPI: cfg.Sources.ExchangeRateAPI.URL,
		Frankfurter:     cfg.Sources.Frankfurter.URL,
	})
	fetcher := source.NewFetcher(time.Duration(cfg.Sources.TimeoutSec) * time.Second)
	cacheTTL := time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
	agg := service.NewAggregator(sources, fetcher, bootstrap.Storage, bootstrap.Metrics, cacheTTL)

	// 6. Presentation Shell
	server := shell.NewServer(cfg, agg, bootstrap.Storage, bootstrap.Downloader, bootstrap.Metrics)
	agg.SetOnUpdate(server.NotifyRatesUpdated)

	refresh := func(trigger string) {
		if _, err := agg.FetchRates(ctx); err != nil {
			if errors.Is(err, domain.ErrRefreshInFlight) {
				return
			}
			slog.Warn("Rate refresh failed", slog.String("trigger", trigger), slog.Any("error", err))
			server.NotifyRefreshFailed(err)
		}
	}

	// 7. Startup Rates: cached table first, live fetch behind it
	if cached, ok := agg.LoadFromCache(); ok {
		slog.Info("📦 Serving cached rates while refreshing",
			slog.String("age", humanize.Time(cached.LastUpdate)),
			slog.Int("sourcesUsed", cached.SourcesUsed))
		go refresh("startup")
	} else {
		if _, err := agg.FetchRates(ctx); err != nil {
			// Keep running; conversions report unavailable until a
			// later refresh succeeds.
			slog.Error("Initial rate fetch failed", slog.Any("error", err))
		}
	}

	// 8. Scheduled Refresh
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Refresh.Schedule, func() { refresh("schedule") }); err != nil {
		slog.Error("❌ Invalid refresh schedule", slog.String("schedule", cfg.Refresh.Schedule), slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 9. Serve
	server.Start()

	slog.InfoContext(ctx, "✨ Cambio Go fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shell server shutdown failed", slog.Any("error", err))
	}
}
