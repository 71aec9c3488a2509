package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/service"
	"github.com/fikri-aulia/sapa-go-api/internal/utils"
)

// UserHandler exposes account-scoped maintenance endpoints.
type UserHandler struct {
	messages service.MessageService
	logger   zerolog.Logger
}

// NewUserHandler constructs a user handler instance.
func NewUserHandler(messages service.MessageService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		messages: messages,
		logger:   logger.With().Str("component", "user_handler").Logger(),
	}
}

// Register binds the user routes.
func (h *UserHandler) Register(router fiber.Router) {
	router.Delete("/me", h.deleteOwnData)
}

// deleteOwnData purges every message, notification and audit entry tied to
// the authenticated user. Account deletion itself is owned by the identity
// provider; this endpoint only removes messaging data.
func (h *UserHandler) deleteOwnData(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	if err := h.messages.DeleteUserData(requestContext(c), userID); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to purge user data")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "user data deleted", nil)
}
