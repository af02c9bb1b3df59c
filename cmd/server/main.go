package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/client"
	"github.com/wavedeck/studio/internal/config"
	"github.com/wavedeck/studio/internal/engine"
	"github.com/wavedeck/studio/internal/handler"
	"github.com/wavedeck/studio/internal/logger"
	"github.com/wavedeck/studio/internal/middleware"
	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/internal/service"
	ws "github.com/wavedeck/studio/internal/websocket"
	"github.com/wavedeck/studio/internal/worker"
)

const janitorInterval = time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("development", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rate limiting is skipped without Redis
	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// Initialize clients
	waveSpeed := client.NewWaveSpeedClient(client.Options{
		BaseURL:        cfg.WaveSpeed.BaseURL,
		APIKey:         cfg.WaveSpeed.APIKey,
		RequestTimeout: cfg.WaveSpeed.RequestTimeout,
		Logger:         log,
	})

	var mirror *client.ArtifactMirror
	r2Client, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Info().Err(err).Msg("artifact mirroring disabled")
	} else {
		mirror = client.NewArtifactMirror(r2Client, log)
	}

	catalog := model.NewCatalog(cfg.Models...)
	eng := engine.New(waveSpeed, catalog, engine.Options{
		Logger:           log,
		ConcurrencyLimit: cfg.Polling.MaxConcurrentJobs,
	})

	// Initialize services
	store := service.NewOperationStore()
	generationWorker := worker.NewGenerationWorker(store, eng, hub, mirror, log)
	generationService := service.NewGenerationService(store, generationWorker, eng, mirror, cfg.Polling.Retention, log)
	go generationService.RunJanitor(ctx, janitorInterval)

	// Initialize handlers and middleware
	routes := &handler.Routes{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"wavespeed": waveSpeed.IsConfigured,
			"r2":        r2Client.IsConfigured,
			"redis":     func() bool { return redisClient != nil },
		}),
		Catalog:     handler.NewCatalogHandler(catalog, validate),
		Encode:      handler.NewEncodeHandler(),
		Generations: handler.NewGenerationHandler(generationService, hub, validate),
		Credential:  middleware.NewCredential(cfg.WaveSpeed.APIKey),
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
		Limits:      cfg.RateLimit,
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          handler.ErrorHandler,
		BodyLimit:             60 * 1024 * 1024, // ten inline images
		DisableStartupMessage: cfg.Server.Env != "development",
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes.Mount(app)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Int("models", len(cfg.Models)).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := generationService.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("generations still running at exit")
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) *redis.Client {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available, rate limiting disabled")
		_ = redisClient.Close()
		return nil
	}
	return redisClient
}
