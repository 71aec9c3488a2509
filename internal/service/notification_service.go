package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/models"
	"github.com/fikri-aulia/sapa-go-api/internal/observability"
	"github.com/fikri-aulia/sapa-go-api/internal/repository"
)

const notificationBufferSize = 16

// NotificationService is the dispatcher reacting to message lifecycle
// events. The On* hooks run inside the transaction of the triggering
// message write, so a notification row is guaranteed to exist the moment
// the write commits. Fanout to live subscribers happens post-commit and is
// best effort.
type NotificationService interface {
	OnMessageCreated(ctx context.Context, tx *gorm.DB, message models.Message) (models.Notification, error)
	OnMessageEdited(ctx context.Context, tx *gorm.DB, message models.Message) (models.Notification, error)
	OnUserDeleted(ctx context.Context, tx *gorm.DB, userID string) error
	PurgeForMessages(ctx context.Context, tx *gorm.DB, messageIDs []uint) error
	Fanout(ctx context.Context, notification models.Notification)
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	tracer      trace.Tracer
	broker      *notificationBroker
	nodeID      string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs the notification dispatcher.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:        repo,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/fikri-aulia/sapa-go-api/internal/service/notification"),
		broker: &notificationBroker{
			subscribers: make(map[string]map[chan dto.NotificationResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *notificationService) OnMessageCreated(ctx context.Context, tx *gorm.DB, message models.Message) (models.Notification, error) {
	kind := models.NotificationKindNewMessage
	noun := "message"
	if message.ParentID != nil {
		kind = models.NotificationKindReply
		noun = "reply"
	}

	notification := models.Notification{
		UserID:    message.ReceiverID,
		MessageID: &message.ID,
		Kind:      kind,
		Content:   fmt.Sprintf("You have a new %s from %s", noun, message.SenderID),
		Metadata:  datatypes.JSONMap{"sender_id": message.SenderID},
	}

	if err := s.repo.WithTx(tx).Create(ctx, &notification); err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (s *notificationService) OnMessageEdited(ctx context.Context, tx *gorm.DB, message models.Message) (models.Notification, error) {
	notification := models.Notification{
		UserID:    message.ReceiverID,
		MessageID: &message.ID,
		Kind:      models.NotificationKindEdit,
		Content:   fmt.Sprintf("%s edited their message", message.SenderID),
		Metadata:  datatypes.JSONMap{"sender_id": message.SenderID},
	}

	if err := s.repo.WithTx(tx).Create(ctx, &notification); err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (s *notificationService) OnUserDeleted(ctx context.Context, tx *gorm.DB, userID string) error {
	return s.repo.WithTx(tx).DeleteByUser(ctx, userID)
}

func (s *notificationService) PurgeForMessages(ctx context.Context, tx *gorm.DB, messageIDs []uint) error {
	return s.repo.WithTx(tx).DeleteByMessageIDs(ctx, messageIDs)
}

// Fanout pushes an already committed notification to in-process
// subscribers and to the cross-node channels. Failures are logged, never
// surfaced: the row is durable either way.
func (s *notificationService) Fanout(ctx context.Context, notification models.Notification) {
	response := dto.NewNotificationResponse(notification)
	s.broker.broadcast(response.UserID, response)

	if err := s.publish(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification event")
	}

	observability.NotificationsPublishedTotal().WithLabelValues(response.Kind).Inc()
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, err := s.repo.FindByID(spanCtx, id)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, translateNotFound(err)
	}
	if notification.UserID != userID {
		return dto.NotificationResponse{}, ErrForbidden
	}

	if err := s.repo.MarkRead(spanCtx, &notification); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(userID, channel)
	observability.SSEClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(userID, channel)
		observability.SSEClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "sapa-notifications", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.broker.broadcast(event.Notification.UserID, event.Notification)
}

func (b *notificationBroker) subscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

func (b *notificationBroker) broadcast(userID string, notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[userID]
	for ch := range subscribers {
		select {
		case ch <- notification:
		default:
		}
	}
}
