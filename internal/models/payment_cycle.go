package models

import (
	"time"

	"gorm.io/gorm"
)

// CycleStatus represents the lifecycle status of a payment cycle
type CycleStatus string

const (
	CycleStatusUpcoming  CycleStatus = "upcoming"
	CycleStatusActive    CycleStatus = "active"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusSkipped   CycleStatus = "skipped"
)

// PaymentCycle is one rotation period of a group. Cycles for the full planned
// duration are created as upcoming at group creation; at most one cycle per
// group is active at any time.
type PaymentCycle struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	GroupID     uint        `gorm:"index;uniqueIndex:idx_cycles_group_number,priority:1" json:"group_id"`
	CycleNumber int         `gorm:"uniqueIndex:idx_cycles_group_number,priority:2" json:"cycle_number"`
	Status      CycleStatus `gorm:"type:varchar(20);default:'upcoming';index" json:"status"`
	IsCompleted bool        `gorm:"default:false" json:"is_completed"`
	IsSkipped   bool        `gorm:"default:false" json:"is_skipped"`

	Amount      float64    `gorm:"type:decimal(15,2)" json:"amount"`
	DueDate     time.Time  `json:"due_date"`
	RecipientID *uint      `gorm:"index" json:"recipient_id"` // member designated to receive this cycle's pool
	StartDate   *time.Time `json:"start_date"`
	CompletedAt *time.Time `json:"completed_at"`
	StartedBy   *uint      `json:"started_by"`
	CompletedBy *uint      `json:"completed_by"`

	// Relationships
	Group     Group     `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	Recipient *Member   `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	Payments  []Payment `gorm:"foreignKey:CycleID" json:"payments,omitempty"`
}
