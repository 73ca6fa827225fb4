package models

import (
	"time"

	"gorm.io/gorm"
)

// NotificationPriority flags how urgently a notification should be surfaced
type NotificationPriority string

const (
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Notification is a persisted in-app notification. Delivery over external
// channels (email, WhatsApp) is best-effort and handled by the dispatcher.
type Notification struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID   uint                   `gorm:"index" json:"user_id"`
	GroupID  *uint                  `gorm:"index" json:"group_id"`
	Type     string                 `gorm:"type:varchar(50)" json:"type"` // e.g. "cycle_started", "payment_reminder"
	Title    string                 `gorm:"type:varchar(255)" json:"title"`
	Message  string                 `gorm:"type:text" json:"message"`
	Priority NotificationPriority   `gorm:"type:varchar(20);default:'normal'" json:"priority"`
	Data     map[string]interface{} `gorm:"serializer:json;type:jsonb" json:"data"`
	Read     bool                   `gorm:"default:false" json:"read"`
}
