// Package main is the entry point for the mcfolio Monte Carlo portfolio
// simulation service. It estimates covariance from historical monthly prices,
// simulates correlated return paths for configured portfolios, and searches
// discretized weight grids for efficient allocations.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/mcfolio/internal/clients/alphavantage"
	"github.com/aristath/mcfolio/internal/config"
	"github.com/aristath/mcfolio/internal/database"
	"github.com/aristath/mcfolio/internal/modules/charts"
	"github.com/aristath/mcfolio/internal/modules/history"
	"github.com/aristath/mcfolio/internal/modules/portfolio"
	"github.com/aristath/mcfolio/internal/modules/reports"
	"github.com/aristath/mcfolio/internal/scheduler"
	"github.com/aristath/mcfolio/internal/server"
	"github.com/aristath/mcfolio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
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

	log.Info().Msg("Starting mcfolio")

	// Historical price cache. A single database holds the monthly series
	// backing covariance estimation.
	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	store, err := history.NewStore(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history store")
	}

	client := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	if cfg.AlphaVantageAPIKey == "" {
		log.Warn().Msg("No Alpha Vantage API key configured; price fetching disabled, cached history only")
	}

	service := portfolio.NewService(portfolio.Config{
		Store:        store,
		Client:       client,
		RiskFreeRate: cfg.RiskFreeRate,
		FromYear:     cfg.PriceStartYear,
		Log:          log,
	})

	// Portfolio definitions are optional at startup; an empty server still
	// serves health and can be restarted once the file exists.
	definitions, err := portfolio.LoadDefinitions(cfg.PortfolioFile)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.PortfolioFile).Msg("No portfolio definitions loaded")
	} else {
		log.Info().Int("count", len(definitions)).Msg("Loaded portfolio definitions")
	}

	chartService := charts.NewService(log)
	reportWriter := reports.NewWriter(cfg.RunsDir(), chartService, log)

	// Background jobs: nightly price refresh keeps cached series current,
	// hourly WAL checkpoints keep the history database compact.
	sched := scheduler.New(log)
	refreshJob := scheduler.NewPriceRefreshJob(store, client, log)
	if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RefreshSchedule).Msg("Failed to register price refresh job")
	}
	if err := sched.AddJob("@hourly", scheduler.NewCheckpointJob(historyDB, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register checkpoint job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:         log,
		Service:     service,
		Definitions: definitions,
		Reports:     reportWriter,
		Client:      client,
		HistoryDB:   historyDB,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with a bounded wait for in-flight requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
