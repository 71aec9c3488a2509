package dto

import (
	"time"

	"github.com/fikri-aulia/sapa-go-api/internal/models"
)

// MessageSendRequest represents the payload to send a direct message.
type MessageSendRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required,max=64"`
	Body       string `json:"body" validate:"required,min=1,max=4000"`
	ParentID   *uint  `json:"parent_id" validate:"omitempty,min=1"`
}

// MessageEditRequest represents the payload to edit a message body.
type MessageEditRequest struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}

// ConversationQuery represents query filters for a conversation page.
type ConversationQuery struct {
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// MessageResponse is the serialized representation of a message.
type MessageResponse struct {
	ID         uint      `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	Edited     bool      `json:"edited"`
	Read       bool      `json:"read"`
	ParentID   *uint     `json:"parent_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ThreadNode is a message with its replies resolved, newest reply first.
type ThreadNode struct {
	MessageResponse
	Replies []ThreadNode `json:"replies"`
}

// InboxResponse groups a user's received messages with the unread subset.
type InboxResponse struct {
	Messages    []MessageResponse `json:"messages"`
	Unread      []MessageResponse `json:"unread"`
	UnreadCount int               `json:"unread_count"`
}

// MessageHistoryResponse is the serialized form of one audit entry.
type MessageHistoryResponse struct {
	ID         uint      `json:"id"`
	MessageID  uint      `json:"message_id"`
	OldBody    string    `json:"old_body"`
	EditedByID string    `json:"edited_by_id"`
	EditedAt   time.Time `json:"edited_at"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Body:       message.Body,
		Edited:     message.Edited,
		Read:       message.Read,
		ParentID:   message.ParentID,
		CreatedAt:  message.CreatedAt,
	}
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// NewMessageHistoryResponse converts a history model to a DTO.
func NewMessageHistoryResponse(entry models.MessageHistory) MessageHistoryResponse {
	return MessageHistoryResponse{
		ID:         entry.ID,
		MessageID:  entry.MessageID,
		OldBody:    entry.OldBody,
		EditedByID: entry.EditedByID,
		EditedAt:   entry.EditedAt,
	}
}

// NewMessageHistoryResponseSlice converts a slice of history models.
func NewMessageHistoryResponseSlice(entries []models.MessageHistory) []MessageHistoryResponse {
	out := make([]MessageHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, NewMessageHistoryResponse(entry))
	}
	return out
}
