package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fikri-aulia/sapa-go-api/internal/models"
)

// MessageRepository persists direct messages and their threading structure.
type MessageRepository interface {
	WithTx(tx *gorm.DB) MessageRepository
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Create(ctx context.Context, message *models.Message) error
	Save(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	FindByIDForUpdate(ctx context.Context, id uint) (models.Message, error)
	MarkRead(ctx context.Context, message *models.Message) error
	Exists(ctx context.Context, id uint) (bool, error)
	ListReplies(ctx context.Context, parentIDs []uint) ([]models.Message, error)
	ListInbox(ctx context.Context, receiverID string, limit, offset int) ([]models.Message, error)
	ListUnread(ctx context.Context, receiverID string) ([]models.Message, error)
	ListConversation(ctx context.Context, userID, otherID string, before time.Time, limit int) ([]models.Message, error)
	CountUnread(ctx context.Context, receiverID string) (int64, error)
	ListIDsByParticipant(ctx context.Context, userID string) ([]uint, error)
	ListChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error)
	DeleteByIDs(ctx context.Context, ids []uint) error
	CreateBatch(ctx context.Context, messages []models.Message, batchSize int) error
	ListAfterID(ctx context.Context, afterID uint, limit int) ([]models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository {
	if tx == nil {
		return r
	}
	return &messageRepository{db: tx}
}

func (r *messageRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) Save(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Save(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// FindByIDForUpdate loads a message under a row lock so concurrent edits of
// the same message serialize against each other. Must run inside a
// transaction to be effective.
func (r *messageRepository) FindByIDForUpdate(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// MarkRead flips the read flag only. The loaded copy may be stale by the
// time the write lands, so the body and edit state must never travel with it.
func (r *messageRepository) MarkRead(ctx context.Context, message *models.Message) error {
	if message.Read {
		return nil
	}
	message.Read = true
	return r.db.WithContext(ctx).Model(message).UpdateColumn("read", true).Error
}

func (r *messageRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListReplies returns the direct replies to the given parents, newest first.
func (r *messageRepository) ListReplies(ctx context.Context, parentIDs []uint) ([]models.Message, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	var replies []models.Message
	if err := r.db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("created_at DESC").
		Find(&replies).Error; err != nil {
		return nil, err
	}
	return replies, nil
}

func (r *messageRepository) ListInbox(ctx context.Context, receiverID string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var messages []models.Message
	if err := r.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// ListUnread fetches the unread subset of an inbox with a trimmed column
// set, serving the (receiver, read) index.
func (r *messageRepository) ListUnread(ctx context.Context, receiverID string) ([]models.Message, error) {
	var messages []models.Message
	if err := r.db.WithContext(ctx).
		Select("id", "sender_id", "receiver_id", "body", "read", "created_at").
		Where("receiver_id = ? AND read = ?", receiverID, false).
		Order("created_at DESC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) ListConversation(ctx context.Context, userID, otherID string, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		userID, otherID, otherID, userID,
	)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND read = ?", receiverID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) ListIDsByParticipant(ctx context.Context, userID string) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *messageRepository) ListChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("parent_id IN ?", parentIDs).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *messageRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&models.Message{}, ids).Error
}

func (r *messageRepository) CreateBatch(ctx context.Context, messages []models.Message, batchSize int) error {
	if len(messages) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return r.db.WithContext(ctx).CreateInBatches(messages, batchSize).Error
}

// ListAfterID pages through messages by ascending id, keyset style, so
// callers can stream arbitrarily large tables in constant memory.
func (r *messageRepository) ListAfterID(ctx context.Context, afterID uint, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var messages []models.Message
	if err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
