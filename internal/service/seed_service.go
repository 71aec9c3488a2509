package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/models"
	"github.com/fikri-aulia/sapa-go-api/internal/repository"
)

const seedBatchSize = 500

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService backfills message data in batches and streams it back out
// with keyset pagination, keeping memory flat regardless of table size.
type SeedService interface {
	SeedMessages(ctx context.Context, token string, rows []dto.SeedMessageRow) (dto.SeedResult, error)
	ListBatch(ctx context.Context, token string, afterID uint, limit int) ([]dto.MessageResponse, uint, error)
}

type seedService struct {
	messages  repository.MessageRepository
	validator *validator.Validate
	enabled   bool
	token     string
	logger    zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(messages repository.MessageRepository, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		messages:  messages,
		validator: validate,
		enabled:   enabled,
		token:     token,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedMessages(ctx context.Context, token string, rows []dto.SeedMessageRow) (dto.SeedResult, error) {
	if !s.enabled {
		return dto.SeedResult{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.SeedResult{}, ErrSeedUnauthorized
	}

	if err := s.validator.Struct(dto.SeedMessagesRequest{Rows: rows}); err != nil {
		return dto.SeedResult{}, err
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		body := strings.TrimSpace(row.Body)
		if body == "" {
			continue
		}
		messages = append(messages, models.Message{
			SenderID:   strings.TrimSpace(row.SenderID),
			ReceiverID: strings.TrimSpace(row.ReceiverID),
			Body:       body,
		})
	}

	if err := s.messages.CreateBatch(ctx, messages, seedBatchSize); err != nil {
		return dto.SeedResult{}, err
	}

	batches := (len(messages) + seedBatchSize - 1) / seedBatchSize
	s.logger.Info().Int("rows", len(messages)).Int("batches", batches).Msg("messages seeded")

	return dto.SeedResult{Inserted: int64(len(messages)), Batches: batches}, nil
}

// ListBatch returns one page of messages ordered by id plus the cursor for
// the next page; a zero cursor marks the end of the table.
func (s *seedService) ListBatch(ctx context.Context, token string, afterID uint, limit int) ([]dto.MessageResponse, uint, error) {
	if !s.enabled {
		return nil, 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return nil, 0, ErrSeedUnauthorized
	}

	messages, err := s.messages.ListAfterID(ctx, afterID, limit)
	if err != nil {
		return nil, 0, err
	}

	next := uint(0)
	if len(messages) > 0 {
		next = messages[len(messages)-1].ID
	}
	return dto.NewMessageResponseSlice(messages), next, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}
