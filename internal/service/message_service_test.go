package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/models"
	"github.com/fikri-aulia/sapa-go-api/internal/repository"
)

type messagingHarness struct {
	db         *gorm.DB
	messages   repository.MessageRepository
	dispatcher NotificationService
	svc        MessageService
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Message{}, &models.MessageHistory{}, &models.Notification{}))
	return db
}

func newMessagingHarness(t *testing.T, redisClient *redis.Client, cacheBase string) *messagingHarness {
	t.Helper()

	db := setupServiceTestDB(t)
	messageRepo := repository.NewMessageRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	audit := NewAuditService(historyRepo, zerolog.Nop())
	dispatcher := NewNotificationService(notificationRepo, nil, "", nil, zerolog.Nop())
	validate := validator.New(validator.WithRequiredStructEnabled())

	svc := NewMessageService(messageRepo, audit, dispatcher, nil, redisClient, cacheBase, validate, zerolog.Nop())

	return &messagingHarness{
		db:         db,
		messages:   messageRepo,
		dispatcher: dispatcher,
		svc:        svc,
	}
}

func TestMessageServiceSendCreatesNotification(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	resp, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "hello bob"})
	require.NoError(t, err)
	require.NotZero(t, resp.ID)
	require.Equal(t, "alice", resp.SenderID)
	require.Equal(t, "hello bob", resp.Body)
	require.False(t, resp.Edited)

	var notifications []models.Notification
	require.NoError(t, h.db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, "bob", notifications[0].UserID)
	require.Equal(t, models.NotificationKindNewMessage, notifications[0].Kind)
	require.Equal(t, "You have a new message from alice", notifications[0].Content)
	require.NotNil(t, notifications[0].MessageID)
	require.Equal(t, resp.ID, *notifications[0].MessageID)
	require.Equal(t, "alice", notifications[0].Metadata["sender_id"])
}

func TestMessageServiceSendReplyUsesReplyKind(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	root, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "root"})
	require.NoError(t, err)

	reply, err := h.svc.Send(context.Background(), "bob", dto.MessageSendRequest{ReceiverID: "alice", Body: "answer", ParentID: &root.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	require.Equal(t, root.ID, *reply.ParentID)

	var notification models.Notification
	require.NoError(t, h.db.Where("user_id = ?", "alice").First(&notification).Error)
	require.Equal(t, models.NotificationKindReply, notification.Kind)
	require.Equal(t, "You have a new reply from bob", notification.Content)
}

func TestMessageServiceSendRejectsMissingParent(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	missing := uint(999)
	_, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "orphan", ParentID: &missing})
	require.ErrorIs(t, err, ErrInvalidParent)

	var messages, notifications int64
	require.NoError(t, h.db.Model(&models.Message{}).Count(&messages).Error)
	require.NoError(t, h.db.Model(&models.Notification{}).Count(&notifications).Error)
	require.Zero(t, messages, "rejected send must not persist anything")
	require.Zero(t, notifications)
}

func TestMessageServiceSendSanitizesBody(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	resp, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ReceiverID: "bob",
		Body:       `<script>alert("x")</script>hello <b>there</b>`,
	})
	require.NoError(t, err)
	require.NotContains(t, resp.Body, "script")
	require.Contains(t, resp.Body, "<b>there</b>")

	_, err = h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "<script>only</script>"})
	require.Error(t, err, "body reduced to nothing must be rejected")
}

func TestMessageServiceSendValidatesPayload(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	_, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "", Body: "hi"})
	require.Error(t, err)

	_, err = h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: ""})
	require.Error(t, err)
}

func TestMessageServiceEditRecordsAuditAndNotifies(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	sent, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "first draft"})
	require.NoError(t, err)

	updated, err := h.svc.Edit(context.Background(), sent.ID, "alice", dto.MessageEditRequest{Body: "final version"})
	require.NoError(t, err)
	require.Equal(t, "final version", updated.Body)
	require.True(t, updated.Edited)

	var history []models.MessageHistory
	require.NoError(t, h.db.Where("message_id = ?", sent.ID).Find(&history).Error)
	require.Len(t, history, 1)
	require.Equal(t, "first draft", history[0].OldBody)
	require.Equal(t, "alice", history[0].EditedByID, "audit records the message sender")

	var edits []models.Notification
	require.NoError(t, h.db.Where("kind = ?", models.NotificationKindEdit).Find(&edits).Error)
	require.Len(t, edits, 1)
	require.Equal(t, "bob", edits[0].UserID)
	require.Equal(t, "alice edited their message", edits[0].Content)
}

func TestMessageServiceEditIdenticalBodyIsNoOp(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	sent, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "unchanged"})
	require.NoError(t, err)

	same, err := h.svc.Edit(context.Background(), sent.ID, "alice", dto.MessageEditRequest{Body: "unchanged"})
	require.NoError(t, err)
	require.Equal(t, "unchanged", same.Body)
	require.False(t, same.Edited)

	var history, notifications int64
	require.NoError(t, h.db.Model(&models.MessageHistory{}).Count(&history).Error)
	require.NoError(t, h.db.Model(&models.Notification{}).Count(&notifications).Error)
	require.Zero(t, history, "no-op edit leaves no audit trail")
	require.Equal(t, int64(1), notifications, "only the original send notification exists")
}

func TestMessageServiceEditAuthorization(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	sent, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "mine"})
	require.NoError(t, err)

	_, err = h.svc.Edit(context.Background(), sent.ID, "bob", dto.MessageEditRequest{Body: "hijacked"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Edit(context.Background(), sent.ID+100, "alice", dto.MessageEditRequest{Body: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMessageServiceMarkRead(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	sent, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "read me"})
	require.NoError(t, err)

	_, err = h.svc.MarkRead(context.Background(), sent.ID, "carol")
	require.ErrorIs(t, err, ErrForbidden, "only the receiver can mark read")

	marked, err := h.svc.MarkRead(context.Background(), sent.ID, "bob")
	require.NoError(t, err)
	require.True(t, marked.Read)

	again, err := h.svc.MarkRead(context.Background(), sent.ID, "bob")
	require.NoError(t, err)
	require.True(t, again.Read)

	count, err := h.svc.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMessageServiceMarkReadPreservesEditedBody(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	sent, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "v1"})
	require.NoError(t, err)

	_, err = h.svc.Edit(context.Background(), sent.ID, "alice", dto.MessageEditRequest{Body: "v2"})
	require.NoError(t, err)

	marked, err := h.svc.MarkRead(context.Background(), sent.ID, "bob")
	require.NoError(t, err)
	require.True(t, marked.Read)
	require.Equal(t, "v2", marked.Body)

	var stored models.Message
	require.NoError(t, h.db.First(&stored, sent.ID).Error)
	require.Equal(t, "v2", stored.Body, "mark read must not roll back the edit")
	require.True(t, stored.Edited)
	require.True(t, stored.Read)

	var history models.MessageHistory
	require.NoError(t, h.db.Where("message_id = ?", sent.ID).First(&history).Error)
	require.Equal(t, "v1", history.OldBody)
}

func TestMessageServiceThreadOrdering(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	now := time.Now().UTC()
	root := models.Message{SenderID: "alice", ReceiverID: "bob", Body: "root", CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, h.db.Create(&root).Error)
	older := models.Message{SenderID: "bob", ReceiverID: "alice", Body: "older reply", ParentID: &root.ID, CreatedAt: now.Add(-40 * time.Minute)}
	require.NoError(t, h.db.Create(&older).Error)
	newer := models.Message{SenderID: "bob", ReceiverID: "alice", Body: "newer reply", ParentID: &root.ID, CreatedAt: now.Add(-20 * time.Minute)}
	require.NoError(t, h.db.Create(&newer).Error)
	nested := models.Message{SenderID: "alice", ReceiverID: "bob", Body: "nested", ParentID: &older.ID, CreatedAt: now.Add(-10 * time.Minute)}
	require.NoError(t, h.db.Create(&nested).Error)

	thread, err := h.svc.Thread(context.Background(), root.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, "root", thread.Body)
	require.Len(t, thread.Replies, 2)
	require.Equal(t, "newer reply", thread.Replies[0].Body, "replies ordered newest first")
	require.Equal(t, "older reply", thread.Replies[1].Body)
	require.Len(t, thread.Replies[1].Replies, 1)
	require.Equal(t, "nested", thread.Replies[1].Replies[0].Body)
	require.Empty(t, thread.Replies[0].Replies)

	_, err = h.svc.Thread(context.Background(), root.ID, "mallory")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Thread(context.Background(), root.ID+100, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMessageServiceHistoryVisibility(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	sent, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "v1"})
	require.NoError(t, err)
	_, err = h.svc.Edit(context.Background(), sent.ID, "alice", dto.MessageEditRequest{Body: "v2"})
	require.NoError(t, err)
	_, err = h.svc.Edit(context.Background(), sent.ID, "alice", dto.MessageEditRequest{Body: "v3"})
	require.NoError(t, err)

	history, err := h.svc.History(context.Background(), sent.ID, "bob")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "v2", history[0].OldBody, "latest superseded body first")
	require.Equal(t, "v1", history[1].OldBody)

	_, err = h.svc.History(context.Background(), sent.ID, "mallory")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestMessageServiceInbox(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	_, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "one"})
	require.NoError(t, err)
	second, err := h.svc.Send(context.Background(), "carol", dto.MessageSendRequest{ReceiverID: "bob", Body: "two"})
	require.NoError(t, err)

	_, err = h.svc.MarkRead(context.Background(), second.ID, "bob")
	require.NoError(t, err)

	inbox, err := h.svc.Inbox(context.Background(), "bob", 0, 0)
	require.NoError(t, err)
	require.Len(t, inbox.Messages, 2)
	require.Len(t, inbox.Unread, 1)
	require.Equal(t, 1, inbox.UnreadCount)
	require.Equal(t, "one", inbox.Unread[0].Body)
}

func TestMessageServiceConversation(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	now := time.Now().UTC()
	rows := []models.Message{
		{SenderID: "alice", ReceiverID: "bob", Body: "first", CreatedAt: now.Add(-3 * time.Hour)},
		{SenderID: "bob", ReceiverID: "alice", Body: "second", CreatedAt: now.Add(-2 * time.Hour)},
		{SenderID: "alice", ReceiverID: "carol", Body: "noise", CreatedAt: now.Add(-time.Hour)},
	}
	for i := range rows {
		require.NoError(t, h.db.Create(&rows[i]).Error)
	}

	page, err := h.svc.Conversation(context.Background(), "alice", "bob", dto.ConversationQuery{})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "second", page[0].Body)

	before := rows[1].CreatedAt
	older, err := h.svc.Conversation(context.Background(), "alice", "bob", dto.ConversationQuery{Before: &before})
	require.NoError(t, err)
	require.Len(t, older, 1)
	require.Equal(t, "first", older[0].Body)
}

func TestMessageServiceDeleteUserDataCascades(t *testing.T) {
	h := newMessagingHarness(t, nil, "")

	root, err := h.svc.Send(context.Background(), "alice", dto.MessageSendRequest{ReceiverID: "bob", Body: "root"})
	require.NoError(t, err)
	reply, err := h.svc.Send(context.Background(), "bob", dto.MessageSendRequest{ReceiverID: "alice", Body: "reply", ParentID: &root.ID})
	require.NoError(t, err)
	_, err = h.svc.Send(context.Background(), "carol", dto.MessageSendRequest{ReceiverID: "bob", Body: "nested", ParentID: &reply.ID})
	require.NoError(t, err)
	_, err = h.svc.Edit(context.Background(), root.ID, "alice", dto.MessageEditRequest{Body: "edited root"})
	require.NoError(t, err)

	survivor, err := h.svc.Send(context.Background(), "carol", dto.MessageSendRequest{ReceiverID: "dave", Body: "unrelated"})
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteUserData(context.Background(), "alice"))

	var messages []models.Message
	require.NoError(t, h.db.Find(&messages).Error)
	require.Len(t, messages, 1, "thread rooted at alice's message is gone, descendants included")
	require.Equal(t, survivor.ID, messages[0].ID)

	var history int64
	require.NoError(t, h.db.Model(&models.MessageHistory{}).Count(&history).Error)
	require.Zero(t, history)

	var notifications []models.Notification
	require.NoError(t, h.db.Find(&notifications).Error)
	require.Len(t, notifications, 1, "only the notification for the unrelated message survives")
	require.Equal(t, "dave", notifications[0].UserID)
}

func TestMessageServiceUnreadCountCaching(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	h := newMessagingHarness(t, redisClient, "sapa")

	for i := 0; i < 2; i++ {
		require.NoError(t, h.db.Create(&models.Message{SenderID: "alice", ReceiverID: "bob", Body: fmt.Sprintf("m%d", i)}).Error)
	}

	count, err := h.svc.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.True(t, server.Exists("sapa:messages:unread:bob"))

	require.NoError(t, h.db.Create(&models.Message{SenderID: "alice", ReceiverID: "bob", Body: "m3"}).Error)

	cached, err := h.svc.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), cached, "cached value served until it expires")

	server.FastForward(unreadCountTTL + time.Second)

	fresh, err := h.svc.UnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, int64(3), fresh)
}
