package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fikri-aulia/sapa-go-api/internal/models"
)

// HistoryRepository persists the append-only message edit history.
type HistoryRepository interface {
	WithTx(tx *gorm.DB) HistoryRepository
	Create(ctx context.Context, entry *models.MessageHistory) error
	ListByMessage(ctx context.Context, messageID uint) ([]models.MessageHistory, error)
	DeleteByMessageIDs(ctx context.Context, messageIDs []uint) error
	DeleteByEditor(ctx context.Context, editorID string) error
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository constructs a history repository backed by GORM.
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) WithTx(tx *gorm.DB) HistoryRepository {
	if tx == nil {
		return r
	}
	return &historyRepository{db: tx}
}

func (r *historyRepository) Create(ctx context.Context, entry *models.MessageHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *historyRepository) ListByMessage(ctx context.Context, messageID uint) ([]models.MessageHistory, error) {
	var entries []models.MessageHistory
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("edited_at DESC, id DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *historyRepository) DeleteByMessageIDs(ctx context.Context, messageIDs []uint) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("message_id IN ?", messageIDs).Delete(&models.MessageHistory{}).Error
}

func (r *historyRepository) DeleteByEditor(ctx context.Context, editorID string) error {
	return r.db.WithContext(ctx).Where("edited_by_id = ?", editorID).Delete(&models.MessageHistory{}).Error
}
