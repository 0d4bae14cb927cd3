// Package main is the entry point for the FundLens managed fund screening
// service. The application loads Morningstar-style fund exports, applies
// formula and strategy filters, scores funds against category peers, and
// tracks a recommended portfolio against strategic allocation profiles.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fundlens/fundlens/internal/config"
	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/modules/snapshots"
	"github.com/fundlens/fundlens/internal/modules/workspace"
	"github.com/fundlens/fundlens/internal/server"
	"github.com/fundlens/fundlens/pkg/logger"
)

// main orchestrates the startup sequence:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes structured logging
// 3. Opens the screens and portfolio databases and applies their schemas
// 4. Creates the snapshot store and the in-memory dataset workspace
// 5. Starts the HTTP server and waits for a shutdown signal
//
// The application uses a 2-database layout under the data directory:
// - screens.db: saved screen formulas and platform code sets
// - portfolio.db: the recommended fund list with allocations and comments
// Dataset snapshots are msgpack files under <data dir>/snapshots.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting FundLens")

	screensDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "screens.db"),
		Profile: database.ProfileStandard,
		Name:    "screens",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open screens database")
	}
	defer screensDB.Close()

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	// Schemas are idempotent, so migration runs on every startup.
	if err := screensDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate screens database")
	}
	if err := portfolioDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate portfolio database")
	}

	store, err := snapshots.NewStore(filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create snapshot store")
	}

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		ScreensDB:   screensDB,
		PortfolioDB: portfolioDB,
		Workspace:   workspace.New(),
		Snapshots:   store,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight requests get up to 10 seconds to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
