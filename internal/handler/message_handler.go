package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/service"
	"github.com/fikri-aulia/sapa-go-api/internal/utils"
)

// MessageHandler exposes the direct-messaging endpoints.
type MessageHandler struct {
	service service.MessageService
	logger  zerolog.Logger
}

// NewMessageHandler constructs a message handler instance.
func NewMessageHandler(service service.MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register binds the message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Post("/", h.send)
	router.Get("/inbox", h.inbox)
	router.Get("/unread-count", h.unreadCount)
	router.Get("/conversations/:userID", h.conversation)
	router.Get("/:id/thread", h.thread)
	router.Get("/:id/history", h.history)
	router.Patch("/:id", h.edit)
	router.Patch("/:id/read", h.markRead)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	message, err := h.service.Send(requestContext(c), userID, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Msg("failed to send message")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	var payload dto.MessageEditRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	message, err := h.service.Edit(requestContext(c), id, userID, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("message_id", id).Msg("failed to edit message")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "message updated", message)
}

func (h *MessageHandler) markRead(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	message, err := h.service.MarkRead(requestContext(c), id, userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "message marked read", message)
}

func (h *MessageHandler) thread(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	thread, err := h.service.Thread(requestContext(c), id, userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "thread", thread)
}

func (h *MessageHandler) history(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	history, err := h.service.History(requestContext(c), id, userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "message history", history)
}

func (h *MessageHandler) inbox(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	inbox, err := h.service.Inbox(requestContext(c), userID, limit, offset)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "inbox", inbox)
}

func (h *MessageHandler) unreadCount(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "unread count", fiber.Map{"unread": count})
}

func (h *MessageHandler) conversation(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	otherID := c.Params("userID")
	if otherID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "user id required")
	}

	var query dto.ConversationQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}

	messages, err := h.service.Conversation(requestContext(c), userID, otherID, query)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "conversation", messages)
}
