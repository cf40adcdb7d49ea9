package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/susu3304/netbank/internal/api"
	"github.com/susu3304/netbank/internal/banking"
	"github.com/susu3304/netbank/internal/config"
	"github.com/susu3304/netbank/internal/db"
	"github.com/susu3304/netbank/internal/session"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	database, err := db.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	bank := banking.NewClient(cfg.BankAPIURL, cfg.BankCallTimeout)
	sessions := session.NewManager()

	// Sessions left open by a previous process have no monitor; the reaper ends them.
	reaper := session.NewReaper(database, sessions, cfg.ReaperInterval)
	reaper.Start()
	defer reaper.Stop()

	// Initialize API server
	apiServer := api.New(cfg, database, bank, sessions)

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	logger.Info().Str("version", banking.Version).Msg("netbank is running. Press Ctrl-C to exit.")

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("API server shutdown")
	}
	sessions.StopAll()
}
