package models

import "time"

// Message represents a direct message exchanged between two users.
// ParentID links replies to the message they answer; a nil parent marks
// the root of a thread. CreatedAt is set once on insert and never updated.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   string    `gorm:"size:64;index;not null" json:"sender_id"`
	ReceiverID string    `gorm:"size:64;index:idx_messages_receiver_read;not null" json:"receiver_id"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	Edited     bool      `gorm:"not null;default:false" json:"edited"`
	Read       bool      `gorm:"not null;default:false;index:idx_messages_receiver_read" json:"read"`
	ParentID   *uint     `gorm:"index" json:"parent_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageHistory preserves the superseded body of an edited message.
// Rows are append-only; EditedByID records the message sender at the time
// of the edit.
type MessageHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MessageID  uint      `gorm:"index;not null" json:"message_id"`
	OldBody    string    `gorm:"type:text;not null" json:"old_body"`
	EditedByID string    `gorm:"size:64;index;not null" json:"edited_by_id"`
	EditedAt   time.Time `gorm:"autoCreateTime" json:"edited_at"`
}
