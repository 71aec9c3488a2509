package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/models"
	"github.com/fikri-aulia/sapa-go-api/internal/observability"
	"github.com/fikri-aulia/sapa-go-api/internal/repository"
)

const unreadCountTTL = 30 * time.Second

// MessagePublisher pushes committed messages to live delivery channels.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, message models.Message)
}

// MessageService is the message store: it owns every message write and
// calls the audit trail and the notification dispatcher synchronously
// inside the same transaction as the triggering mutation.
type MessageService interface {
	Send(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	Edit(ctx context.Context, id uint, editorID string, payload dto.MessageEditRequest) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, id uint, readerID string) (dto.MessageResponse, error)
	Thread(ctx context.Context, id uint, viewerID string) (dto.ThreadNode, error)
	History(ctx context.Context, id uint, viewerID string) ([]dto.MessageHistoryResponse, error)
	Inbox(ctx context.Context, userID string, limit, offset int) (dto.InboxResponse, error)
	Conversation(ctx context.Context, userID, otherID string, query dto.ConversationQuery) ([]dto.MessageResponse, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	DeleteUserData(ctx context.Context, userID string) error
}

type messageService struct {
	messages   repository.MessageRepository
	audit      AuditService
	dispatcher NotificationService
	feed       MessagePublisher
	redis      *redis.Client
	cachePref  string
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	sanitizer  *bluemonday.Policy
}

// NewMessageService constructs the message store service.
func NewMessageService(messages repository.MessageRepository, audit AuditService, dispatcher NotificationService, feed MessagePublisher, redisClient *redis.Client, cacheBase string, validate *validator.Validate, logger zerolog.Logger) MessageService {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("br")

	prefix := ""
	if cacheBase != "" {
		prefix = cacheBase + ":messages:unread"
	}

	return &messageService{
		messages:   messages,
		audit:      audit,
		dispatcher: dispatcher,
		feed:       feed,
		redis:      redisClient,
		cachePref:  prefix,
		validator:  validate,
		logger:     logger.With().Str("component", "message_service").Logger(),
		tracer:     otel.Tracer("github.com/fikri-aulia/sapa-go-api/internal/service/message"),
		sanitizer:  policy,
	}
}

func (s *messageService) Send(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Body))
	if clean == "" {
		return dto.MessageResponse{}, errors.New("message body empty after sanitization")
	}

	attrs := []attribute.KeyValue{
		attribute.String("message.sender_id", senderID),
		attribute.String("message.receiver_id", payload.ReceiverID),
		attribute.Bool("message.is_reply", payload.ParentID != nil),
	}

	spanCtx, span := s.tracer.Start(ctx, "messages.send", trace.WithAttributes(attrs...))
	defer span.End()

	var (
		created      models.Message
		notification models.Notification
	)

	err := s.messages.Transaction(spanCtx, func(tx *gorm.DB) error {
		repo := s.messages.WithTx(tx)

		if payload.ParentID != nil {
			exists, err := repo.Exists(spanCtx, *payload.ParentID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrInvalidParent
			}
		}

		message := models.Message{
			SenderID:   senderID,
			ReceiverID: payload.ReceiverID,
			Body:       clean,
			ParentID:   payload.ParentID,
		}
		if err := repo.Create(spanCtx, &message); err != nil {
			return err
		}

		emitted, err := s.dispatcher.OnMessageCreated(spanCtx, tx, message)
		if err != nil {
			return err
		}

		created = message
		notification = emitted
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	s.invalidateUnreadCount(spanCtx, created.ReceiverID)
	s.dispatcher.Fanout(spanCtx, notification)
	if s.feed != nil {
		s.feed.PublishMessage(spanCtx, created)
	}

	observability.MessagesSentTotal().WithLabelValues(notification.Kind).Inc()
	s.logger.Info().Uint("message_id", created.ID).Str("sender_id", senderID).Str("receiver_id", created.ReceiverID).Msg("message sent")

	return dto.NewMessageResponse(created), nil
}

func (s *messageService) Edit(ctx context.Context, id uint, editorID string, payload dto.MessageEditRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Body))
	if clean == "" {
		return dto.MessageResponse{}, errors.New("message body empty after sanitization")
	}

	spanCtx, span := s.tracer.Start(ctx, "messages.edit", trace.WithAttributes(
		attribute.String("message.editor_id", editorID),
	))
	defer span.End()

	var (
		updated      models.Message
		notification *models.Notification
	)

	err := s.messages.Transaction(spanCtx, func(tx *gorm.DB) error {
		repo := s.messages.WithTx(tx)

		message, err := repo.FindByIDForUpdate(spanCtx, id)
		if err != nil {
			return translateNotFound(err)
		}
		if message.SenderID != editorID {
			return ErrForbidden
		}
		if message.Body == clean {
			// Unchanged body is a full no-op: no audit row, no notification.
			updated = message
			return nil
		}

		if err := s.audit.Record(spanCtx, tx, message, message.Body, message.SenderID); err != nil {
			return err
		}

		message.Body = clean
		message.Edited = true
		if err := repo.Save(spanCtx, &message); err != nil {
			return err
		}

		emitted, err := s.dispatcher.OnMessageEdited(spanCtx, tx, message)
		if err != nil {
			return err
		}

		updated = message
		notification = &emitted
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	if notification != nil {
		s.dispatcher.Fanout(spanCtx, *notification)
		if s.feed != nil {
			s.feed.PublishMessage(spanCtx, updated)
		}
		observability.MessageEditsTotal().Inc()
		s.logger.Info().Uint("message_id", updated.ID).Str("editor_id", editorID).Msg("message edited")
	}

	return dto.NewMessageResponse(updated), nil
}

func (s *messageService) MarkRead(ctx context.Context, id uint, readerID string) (dto.MessageResponse, error) {
	message, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return dto.MessageResponse{}, translateNotFound(err)
	}
	if message.ReceiverID != readerID {
		return dto.MessageResponse{}, ErrForbidden
	}
	if message.Read {
		return dto.NewMessageResponse(message), nil
	}

	if err := s.messages.MarkRead(ctx, &message); err != nil {
		return dto.MessageResponse{}, err
	}

	s.invalidateUnreadCount(ctx, readerID)
	return dto.NewMessageResponse(message), nil
}

// Thread resolves the full reply tree below a message. The tree is walked
// level by level over the parent-id index with an explicit frontier, so
// arbitrarily deep threads never grow the call stack. Replies are ordered
// newest first at every level.
func (s *messageService) Thread(ctx context.Context, id uint, viewerID string) (dto.ThreadNode, error) {
	root, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return dto.ThreadNode{}, translateNotFound(err)
	}
	if root.SenderID != viewerID && root.ReceiverID != viewerID {
		return dto.ThreadNode{}, ErrForbidden
	}

	nodes := map[uint]*dto.ThreadNode{
		root.ID: {MessageResponse: dto.NewMessageResponse(root), Replies: []dto.ThreadNode{}},
	}

	frontier := []uint{root.ID}
	order := []uint{root.ID}
	for len(frontier) > 0 {
		replies, err := s.messages.ListReplies(ctx, frontier)
		if err != nil {
			return dto.ThreadNode{}, err
		}

		frontier = frontier[:0]
		for _, reply := range replies {
			if _, seen := nodes[reply.ID]; seen {
				continue
			}
			nodes[reply.ID] = &dto.ThreadNode{MessageResponse: dto.NewMessageResponse(reply), Replies: []dto.ThreadNode{}}
			frontier = append(frontier, reply.ID)
			order = append(order, reply.ID)
		}
	}

	// Attach children to parents deepest-first so every subtree is complete
	// before it is copied into its parent. Prepending keeps each Replies
	// slice newest first, matching the fetch order.
	for i := len(order) - 1; i > 0; i-- {
		node := nodes[order[i]]
		if node.ParentID == nil {
			continue
		}
		if parent, ok := nodes[*node.ParentID]; ok {
			parent.Replies = append([]dto.ThreadNode{*node}, parent.Replies...)
		}
	}

	return *nodes[root.ID], nil
}

func (s *messageService) History(ctx context.Context, id uint, viewerID string) ([]dto.MessageHistoryResponse, error) {
	message, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	if message.SenderID != viewerID && message.ReceiverID != viewerID {
		return nil, ErrForbidden
	}
	return s.audit.HistoryOf(ctx, id)
}

func (s *messageService) Inbox(ctx context.Context, userID string, limit, offset int) (dto.InboxResponse, error) {
	messages, err := s.messages.ListInbox(ctx, userID, limit, offset)
	if err != nil {
		return dto.InboxResponse{}, err
	}

	unread, err := s.messages.ListUnread(ctx, userID)
	if err != nil {
		return dto.InboxResponse{}, err
	}

	return dto.InboxResponse{
		Messages:    dto.NewMessageResponseSlice(messages),
		Unread:      dto.NewMessageResponseSlice(unread),
		UnreadCount: len(unread),
	}, nil
}

func (s *messageService) Conversation(ctx context.Context, userID, otherID string, query dto.ConversationQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.messages.ListConversation(ctx, userID, otherID, before, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *messageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if cached, ok := s.cachedUnreadCount(ctx, userID); ok {
		return cached, nil
	}

	count, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.cacheUnreadCount(ctx, userID, count)
	return count, nil
}

// DeleteUserData removes every message the user participates in, the
// descendant replies of those messages, and the notifications and audit
// entries that reference either the user or a removed message. The whole
// cascade runs in one transaction so it either completes or leaves the
// store untouched.
func (s *messageService) DeleteUserData(ctx context.Context, userID string) error {
	spanCtx, span := s.tracer.Start(ctx, "messages.delete_user_data", trace.WithAttributes(
		attribute.String("message.user_id", userID),
	))
	defer span.End()

	err := s.messages.Transaction(spanCtx, func(tx *gorm.DB) error {
		repo := s.messages.WithTx(tx)

		seed, err := repo.ListIDsByParticipant(spanCtx, userID)
		if err != nil {
			return err
		}

		// Expand to descendant replies with a worklist over the parent index.
		doomed := make(map[uint]struct{}, len(seed))
		frontier := make([]uint, 0, len(seed))
		for _, id := range seed {
			doomed[id] = struct{}{}
			frontier = append(frontier, id)
		}
		for len(frontier) > 0 {
			children, err := repo.ListChildIDs(spanCtx, frontier)
			if err != nil {
				return err
			}
			frontier = frontier[:0]
			for _, id := range children {
				if _, seen := doomed[id]; seen {
					continue
				}
				doomed[id] = struct{}{}
				frontier = append(frontier, id)
			}
		}

		ids := make([]uint, 0, len(doomed))
		for id := range doomed {
			ids = append(ids, id)
		}

		if err := s.dispatcher.PurgeForMessages(spanCtx, tx, ids); err != nil {
			return err
		}
		if err := s.dispatcher.OnUserDeleted(spanCtx, tx, userID); err != nil {
			return err
		}
		if err := s.audit.PurgeForMessages(spanCtx, tx, ids); err != nil {
			return err
		}
		if err := s.audit.PurgeForEditor(spanCtx, tx, userID); err != nil {
			return err
		}
		return repo.DeleteByIDs(spanCtx, ids)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.invalidateUnreadCount(spanCtx, userID)
	s.logger.Info().Str("user_id", userID).Msg("user messaging data purged")
	return nil
}

func (s *messageService) unreadCountKey(userID string) string {
	return fmt.Sprintf("%s:%s", s.cachePref, userID)
}

func (s *messageService) cachedUnreadCount(ctx context.Context, userID string) (int64, bool) {
	if s.redis == nil || s.cachePref == "" {
		return 0, false
	}

	raw, err := s.redis.Get(ctx, s.unreadCountKey(userID)).Result()
	if err != nil {
		return 0, false
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return count, true
}

func (s *messageService) cacheUnreadCount(ctx context.Context, userID string, count int64) {
	if s.redis == nil || s.cachePref == "" {
		return
	}
	if err := s.redis.Set(ctx, s.unreadCountKey(userID), strconv.FormatInt(count, 10), unreadCountTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache unread count")
	}
}

func (s *messageService) invalidateUnreadCount(ctx context.Context, userID string) {
	if s.redis == nil || s.cachePref == "" {
		return
	}
	if err := s.redis.Del(ctx, s.unreadCountKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate unread count cache")
	}
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
