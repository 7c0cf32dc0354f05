package app

import (
	"context"
	"log/slog"
	"sync"

	"cambio_go/internal/domain"
	"cambio_go/internal/infra"
	"cambio_go/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Downloader *infra.FlagDownloader
	Metrics    *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (DB, Dir, etc.)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Cambio Go...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Cache.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Initialize Flag Downloader
	downloader, err := infra.NewFlagDownloader()
	if err != nil {
		return err
	}
	b.Downloader = downloader
	slog.Info("✅ Flag downloader ready")

	// 5. Metrics registry
	b.Metrics = infra.NewMetrics()

	return nil
}

// SyncAssets downloads the country flags for every supported currency
// in the background. This simulates the "Loading Screen" logic.
func (b *Bootstrap) SyncAssets(ctx context.Context) {
	slog.Info("🔄 Starting asset synchronization...")

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent downloads

	for _, currency := range domain.Currencies() {
		wg.Add(1)
		go func(cc string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			if _, err := b.Downloader.DownloadFlag(cc); err != nil {
				slog.Warn("Failed to download flag", slog.String("country", cc), slog.Any("error", err))
			}
		}(currency.CountryCode())
	}

	wg.Wait()
	slog.Info("✨ Asset synchronization completed")
}
