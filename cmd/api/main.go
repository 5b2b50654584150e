package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-issuance-system/internal/cache"
	"github.com/fairyhunter13/coupon-issuance-system/internal/config"
	"github.com/fairyhunter13/coupon-issuance-system/internal/event"
	"github.com/fairyhunter13/coupon-issuance-system/internal/handler"
	"github.com/fairyhunter13/coupon-issuance-system/internal/service"
	"github.com/fairyhunter13/coupon-issuance-system/internal/validator"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Connect to the KV store with retry. No fallback between cluster and
	// standalone: an unreachable deployment is fatal.
	rdb, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// One shared producer handle per process.
	publisher, err := event.NewPublisher(cfg.Kafka)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka producer")
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Coupon Issuance System",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB body limit
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := validator.New()

	// Initialize issuance components (layered architecture)
	couponCache := cache.NewCouponCache(rdb, cfg.Cache)
	admission := cache.NewAdmissionScript(rdb)
	issuerService := service.NewIssuerService(couponCache, admission, publisher, cfg.Cache)

	requestTimeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	couponHandler := handler.NewCouponHandler(issuerService, validate, requestTimeout)
	statusHandler := handler.NewStatusHandler(issuerService)
	adminHandler := handler.NewAdminHandler(issuerService)
	healthHandler := handler.NewHealthHandler(redisPinger{rdb})

	app.Get("/health", healthHandler.Check)

	// Coupon routes
	api := app.Group("/api/v1")
	api.Post("/coupons/issue", couponHandler.IssueCoupon)
	api.Post("/coupons/redeem", couponHandler.RedeemCoupon)
	api.Get("/coupons/status/:event_id", statusHandler.EventStatus)
	api.Get("/coupons/user/:user_id/event/:event_id", statusHandler.UserCoupon)
	api.Post("/admin/events/:event_id/stock", adminHandler.InitializeStock)
	api.Get("/admin/events/:event_id/stats", adminHandler.CacheStats)
	api.Delete("/admin/events/:event_id/cache", adminHandler.InvalidateCache)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Drain publish repairs before tearing down the producer they rely on.
	log.Info().Msg("waiting for publish repairs to settle...")
	issuerService.Close()

	log.Info().Msg("closing kafka producer...")
	publisher.Close()

	log.Info().Msg("closing redis connections...")
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("error closing redis client")
	}
	log.Info().Msg("server stopped")
}

// redisPinger adapts the redis client to the health handler's Pinger.
type redisPinger struct {
	rdb redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
