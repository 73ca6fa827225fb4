package models

import (
	"time"

	"gorm.io/gorm"
)

// ActivityLog records an auditable action performed inside a group.
type ActivityLog struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	GroupID     uint                   `gorm:"index" json:"group_id"`
	UserID      uint                   `gorm:"index" json:"user_id"`
	Type        string                 `gorm:"type:varchar(50)" json:"type"` // e.g. "payment_verified", "cycle_started"
	Description string                 `gorm:"type:text" json:"description"`
	Metadata    map[string]interface{} `gorm:"serializer:json" json:"metadata"`
}
