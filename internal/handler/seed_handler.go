package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/service"
	"github.com/fikri-aulia/sapa-go-api/internal/utils"
)

// SeedHandler exposes tooling endpoints for backfilling message data.
type SeedHandler struct {
	service service.SeedService
	logger  zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{
		service: service,
		logger:  logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register wires seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/messages", h.messages)
	router.Get("/messages", h.listBatch)
}

func (h *SeedHandler) messages(c *fiber.Ctx) error {
	token := c.Get("X-Seed-Token")

	var payload dto.SeedMessagesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.SeedMessages(requestContext(c), token, payload.Rows)
	if err != nil {
		return h.seedError(c, err)
	}

	return utils.SendSuccess(c, "messages seeded", result)
}

func (h *SeedHandler) listBatch(c *fiber.Ctx) error {
	token := c.Get("X-Seed-Token")

	after, err := parseQueryInt(c, "after")
	if err != nil || after < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid after cursor")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	messages, next, err := h.service.ListBatch(requestContext(c), token, uint(after), limit)
	if err != nil {
		return h.seedError(c, err)
	}

	return utils.SendSuccess(c, "message batch", fiber.Map{"messages": messages, "next": next})
}

func (h *SeedHandler) seedError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSeedDisabled):
		return utils.SendError(c, fiber.StatusForbidden, "seeding disabled")
	case errors.Is(err, service.ErrSeedUnauthorized):
		return utils.SendError(c, fiber.StatusUnauthorized, "invalid seed token")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("seed operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "seed operation failed")
	}
}
