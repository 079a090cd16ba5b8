package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/config"
	"github.com/raakeshmj/gobill/internal/server"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Log.ConfigureZerolog()

	log.Info().
		Str("log_level", cfg.Log.Level).
		Bool("debug", cfg.Log.Debug).
		Bool("redis", cfg.RedisAddr != "").
		Bool("postgres", cfg.DatabaseURL != "").
		Msg("Starting gobill API")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := server.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise server")
	}
	defer cleanup()

	if err := srv.Run(ctx, cfg.ListenAddress(), cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		cleanup()
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}
