package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/middleware"
	"github.com/fikri-aulia/sapa-go-api/internal/service"
)

// FeedHandler wires the live message feed websocket endpoint.
type FeedHandler struct {
	service service.FeedService
	logger  zerolog.Logger
}

// NewFeedHandler creates a feed handler instance.
func NewFeedHandler(service service.FeedService, logger zerolog.Logger) *FeedHandler {
	return &FeedHandler{
		service: service,
		logger:  logger.With().Str("component", "feed_handler").Logger(),
	}
}

// Register binds the feed routes under the provided router group.
func (h *FeedHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *FeedHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	correlation := fmt.Sprint(conn.Locals("correlation_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.FeedConnectionOptions{
		UserID:        userID,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", userID).Msg("feed websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Msg("feed websocket disconnected")
}

func websocketUserID(conn *websocket.Conn) string {
	if v := conn.Locals("user_id"); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
