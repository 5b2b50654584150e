package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
	"github.com/fairyhunter13/coupon-issuance-system/internal/event"
	"github.com/fairyhunter13/coupon-issuance-system/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	// Ensure the consumer-owned tables exist before applying records.
	if err := event.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	store := event.NewCouponStore(pool)
	consumer, err := event.NewConsumer(cfg.Kafka, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka consumer")
	}
	defer consumer.Close()

	log.Info().Msg("consumer started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		// Offsets for the failed batch were not committed; the next start
		// rewinds to the last commit and redelivers.
		log.Fatal().Err(err).Msg("consumer stopped on batch failure")
	}
	log.Info().Msg("consumer stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
