package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification kinds emitted by the dispatcher.
const (
	NotificationKindNewMessage = "new_message"
	NotificationKindReply      = "reply"
	NotificationKindEdit       = "edit"
)

// Notification represents a user-facing notification produced as a side
// effect of a message write. The read flag only ever transitions from
// false to true.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;index:idx_notifications_user_read" json:"user_id"`
	MessageID *uint             `gorm:"index" json:"message_id,omitempty"`
	Kind      string            `gorm:"size:32;not null;default:new_message" json:"kind"`
	Content   string            `gorm:"type:text" json:"content"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	Read      bool              `gorm:"not null;default:false;index:idx_notifications_user_read" json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}
