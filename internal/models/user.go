package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered account. Group membership is tracked separately
// via Member; a Member may exist without any User linked.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FirebaseUID string `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	Name        string `gorm:"type:varchar(255)" json:"name"`
	Email       string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone       string `gorm:"type:varchar(50)" json:"phone"`

	// Relationships
	Memberships   []Member       `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
	Notifications []Notification `gorm:"foreignKey:UserID" json:"notifications,omitempty"`
}
