package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"teamcollab/config"
	"teamcollab/identity"
	"teamcollab/middleware"
	"teamcollab/realtime"
	"teamcollab/routes"
	"teamcollab/services"
	"teamcollab/utils"
	"teamcollab/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	utils.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger := utils.Component("main")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	svc := services.New(config.DB)

	verifier, err := identity.NewJWTVerifier(cfg.Identity)
	if err != nil {
		logger.Fatalf("Failed to set up identity verification: %v", err)
	}
	resolver := identity.NewResolver(verifier, svc.Users)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub()
	var backplane realtime.Backplane = realtime.NewLocalBackplane(hub)
	var limiterStorage fiber.Storage

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()

		limiterStorage = middleware.NewRedisStorage(rdb)
		backplane = realtime.NewRedisBackplane(rdb, cfg.Relay.ChannelPrefix)

		backplaneWorker := worker.NewBackplaneWorker(rdb, hub, cfg.Relay.ChannelPrefix)
		go backplaneWorker.Start(ctx)
	}

	relay := realtime.NewRelay(hub, svc.Messages, svc.Teams, backplane, realtime.Config{
		SendBuffer:   cfg.Relay.SendBuffer,
		PingInterval: cfg.Relay.PingInterval,
	})

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: routes.ErrorHandler,
	})
	app.Use(recover.New())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	app.Use(middleware.CORS(corsConfig))

	routes.SetupRoutes(app, routes.Dependencies{
		Context:         ctx,
		Services:        svc,
		Resolver:        resolver,
		Relay:           relay,
		LimiterStorage:  limiterStorage,
		RateLimitWrites: cfg.RateLimitWrites,
		LogRequests:     true,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Shutdown failed")
		}
	}()

	logger.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
