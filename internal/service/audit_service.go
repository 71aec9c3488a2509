package service

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/models"
	"github.com/fikri-aulia/sapa-go-api/internal/repository"
)

// AuditService keeps the append-only trail of superseded message bodies.
// Record is only ever called by the message store inside the edit
// transaction; it never validates referential integrity itself.
type AuditService interface {
	Record(ctx context.Context, tx *gorm.DB, message models.Message, oldBody, editorID string) error
	HistoryOf(ctx context.Context, messageID uint) ([]dto.MessageHistoryResponse, error)
	PurgeForMessages(ctx context.Context, tx *gorm.DB, messageIDs []uint) error
	PurgeForEditor(ctx context.Context, tx *gorm.DB, editorID string) error
}

type auditService struct {
	repo   repository.HistoryRepository
	logger zerolog.Logger
}

// NewAuditService constructs the audit trail service.
func NewAuditService(repo repository.HistoryRepository, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) Record(ctx context.Context, tx *gorm.DB, message models.Message, oldBody, editorID string) error {
	entry := models.MessageHistory{
		MessageID:  message.ID,
		OldBody:    oldBody,
		EditedByID: editorID,
	}

	if err := s.repo.WithTx(tx).Create(ctx, &entry); err != nil {
		return err
	}

	s.logger.Debug().Uint("message_id", message.ID).Str("edited_by", editorID).Msg("message edit recorded")
	return nil
}

func (s *auditService) HistoryOf(ctx context.Context, messageID uint) ([]dto.MessageHistoryResponse, error) {
	entries, err := s.repo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageHistoryResponseSlice(entries), nil
}

func (s *auditService) PurgeForMessages(ctx context.Context, tx *gorm.DB, messageIDs []uint) error {
	return s.repo.WithTx(tx).DeleteByMessageIDs(ctx, messageIDs)
}

func (s *auditService) PurgeForEditor(ctx context.Context, tx *gorm.DB, editorID string) error {
	return s.repo.WithTx(tx).DeleteByEditor(ctx, editorID)
}
