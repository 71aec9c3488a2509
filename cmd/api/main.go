package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/config"
	"github.com/fikri-aulia/sapa-go-api/internal/database"
	"github.com/fikri-aulia/sapa-go-api/internal/handler"
	"github.com/fikri-aulia/sapa-go-api/internal/middleware"
	"github.com/fikri-aulia/sapa-go-api/internal/repository"
	"github.com/fikri-aulia/sapa-go-api/internal/router"
	"github.com/fikri-aulia/sapa-go-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	messageRepo := repository.NewMessageRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	auditService := service.NewAuditService(historyRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.EventChannel, natsConn, logger)
	feedService := service.NewFeedService(redisClient, cfg.EventChannel, natsConn, logger)
	messageService := service.NewMessageService(messageRepo, auditService, notificationService, feedService, redisClient, cfg.EventChannel, validate, logger)
	seedService := service.NewSeedService(messageRepo, validate, cfg.SeedEnabled, cfg.SeedToken, logger)

	messageHandler := handler.NewMessageHandler(messageService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive)
	feedHandler := handler.NewFeedHandler(feedService, logger)
	userHandler := handler.NewUserHandler(messageService, logger)
	seedHandler := handler.NewSeedHandler(seedService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		MessageHandler:      messageHandler,
		NotificationHandler: notificationHandler,
		FeedHandler:         feedHandler,
		UserHandler:         userHandler,
		SeedHandler:         seedHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	runCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	notificationService.Start(runCtx)
	feedService.Start(runCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
