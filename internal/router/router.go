package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fikri-aulia/sapa-go-api/internal/config"
	"github.com/fikri-aulia/sapa-go-api/internal/handler"
	"github.com/fikri-aulia/sapa-go-api/internal/middleware"
	"github.com/fikri-aulia/sapa-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MessageHandler      *handler.MessageHandler
	NotificationHandler *handler.NotificationHandler
	FeedHandler         *handler.FeedHandler
	UserHandler         *handler.UserHandler
	SeedHandler         *handler.SeedHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.MessageHandler != nil {
		sendLimiter := middleware.RateLimit("messages:send", cfg.SendRateLimit, cfg.SendRateWindow)
		messages := app.Group("/api/v2/messages", jwtMiddleware, func(c *fiber.Ctx) error {
			if c.Method() == fiber.MethodPost {
				return sendLimiter(c)
			}
			return c.Next()
		})
		deps.MessageHandler.Register(messages)
	}

	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v2/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.FeedHandler != nil {
		feed := app.Group("/api/v2/feed", jwtMiddleware)
		deps.FeedHandler.Register(feed)
	}

	if deps.UserHandler != nil {
		users := app.Group("/api/v2/users", jwtMiddleware)
		deps.UserHandler.Register(users)
	}

	if deps.SeedHandler != nil {
		seed := app.Group("/api/v2/seed")
		deps.SeedHandler.Register(seed)
	}
}
