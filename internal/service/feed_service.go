package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/models"
	"github.com/fikri-aulia/sapa-go-api/internal/observability"
)

const feedSendBufferSize = 32

// FeedConnectionOptions wraps metadata extracted during the HTTP upgrade.
type FeedConnectionOptions struct {
	UserID        string
	CorrelationID string
	Context       context.Context
}

// FeedService pushes committed messages to the receiver's live websocket
// connections. It is write-only from the client's perspective: connections
// receive events, they never produce them.
type FeedService interface {
	ServeConnection(conn *websocket.Conn, opts FeedConnectionOptions)
	PublishMessage(ctx context.Context, message models.Message)
	Start(ctx context.Context)
}

type feedService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	hub         *feedHub
	nodeID      string
}

// feedHub keeps track of active websocket clients per user.
type feedHub struct {
	mu    sync.RWMutex
	users map[string]map[*feedClient]struct{}
	log   zerolog.Logger
}

type feedClient struct {
	conn    *websocket.Conn
	send    chan dto.MessageResponse
	options FeedConnectionOptions
	service *feedService
	closed  chan struct{}
	once    sync.Once
}

type feedEvent struct {
	Source  string              `json:"source"`
	Message dto.MessageResponse `json:"message"`
	SentAt  time.Time           `json:"sent_at"`
}

// NewFeedService constructs the live message feed service.
func NewFeedService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) FeedService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":feed"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".feed"
	}

	return &feedService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "feed_service").Logger(),
		hub: &feedHub{
			users: make(map[string]map[*feedClient]struct{}),
			log:   logger.With().Str("component", "feed_hub").Logger(),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *feedService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *feedService) ServeConnection(conn *websocket.Conn, opts FeedConnectionOptions) {
	client := &feedClient{
		conn:    conn,
		send:    make(chan dto.MessageResponse, feedSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	observability.FeedConnectionsTotal().Inc()

	go client.writer()
	client.reader()
}

func (s *feedService) PublishMessage(ctx context.Context, message models.Message) {
	response := dto.NewMessageResponse(message)
	s.hub.broadcast(response.ReceiverID, response)

	if err := s.publish(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish feed event")
	}
}

func (s *feedService) publish(ctx context.Context, message dto.MessageResponse) error {
	event := feedEvent{
		Source:  s.nodeID,
		Message: message,
		SentAt:  time.Now().UTC(),
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

func (s *feedService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("feed redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *feedService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "sapa-feed", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats feed subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain feed nats subscription")
		}
	}()
}

func (s *feedService) handleEvent(data []byte) {
	var event feedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid feed event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.hub.broadcast(event.Message.ReceiverID, event.Message)
}

func (h *feedHub) register(client *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.options.UserID
	if _, exists := h.users[userID]; !exists {
		h.users[userID] = make(map[*feedClient]struct{})
	}
	h.users[userID][client] = struct{}{}
	h.log.Debug().Str("user_id", userID).Msg("feed client connected")
}

func (h *feedHub) unregister(client *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.options.UserID
	if clients, ok := h.users[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.users, userID)
		}
	}
	h.log.Debug().Str("user_id", userID).Msg("feed client disconnected")
}

func (h *feedHub) broadcast(userID string, message dto.MessageResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.users[userID]
	for client := range clients {
		select {
		case client.send <- message:
		default:
			h.log.Warn().Str("user_id", userID).Msg("dropping feed message for slow client")
		}
	}
}

func (c *feedClient) reader() {
	defer c.close()

	// Clients do not send application frames; the read loop exists to
	// observe the connection closing and to answer control frames.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.service.logger.Debug().Err(err).Msg("feed read loop ended")
			return
		}
	}
}

func (c *feedClient) writer() {
	defer c.close()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.service.logger.Debug().Err(err).Msg("feed write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("feed ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *feedClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		_ = c.conn.Close()
	})
}
