package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otmsite/internal/config"
	"otmsite/internal/database"
	"otmsite/internal/server"

	"github.com/jmoiron/sqlx"
)

// @title OTM Education API
// @description Contact form, contact threads and mailbox polling for the OTM Education site.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The SQL store is optional; without DATABASE_URL contacts live in a JSON file.
	var db *sqlx.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()
		logger.Info().Msg("Database connection established successfully")
	}

	components, err := server.NewComponents(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// Create and initialize server
	srv := server.New(cfg, components, logger)
	srv.Initialize()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}
