package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentStatus represents the status of a single member contribution
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusLate    PaymentStatus = "late"
	PaymentStatusSkipped PaymentStatus = "skipped"
)

// PaymentGateway identifies how a payment was settled
type PaymentGateway string

const (
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
	PaymentGatewayManual   PaymentGateway = "manual"
)

// Payment is one member's contribution for one cycle. Exactly one record per
// (cycle, member) pair exists, created in bulk when the cycle activates and
// never deleted. The pair invariant is enforced by the composite unique index.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	CycleID  uint  `gorm:"index;uniqueIndex:idx_payments_cycle_member,priority:1" json:"cycle_id"`
	MemberID uint  `gorm:"uniqueIndex:idx_payments_cycle_member,priority:2" json:"member_id"`
	UserID   *uint `gorm:"index" json:"user_id"` // nil for unregistered members
	GroupID  uint  `gorm:"index" json:"group_id"`

	Amount     float64        `gorm:"type:decimal(15,2)" json:"amount"`
	Status     PaymentStatus  `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	PaidAt     *time.Time     `json:"paid_at"`
	VerifiedBy *uint          `json:"verified_by"`
	Gateway    PaymentGateway `gorm:"type:varchar(50);default:'manual'" json:"gateway"`
	Channel    string         `gorm:"type:varchar(100)" json:"channel"`  // e.g. "bank_transfer", "gopay"
	OrderID    string         `gorm:"type:varchar(100);index" json:"order_id"` // gateway order id, empty for manual

	// Relationships
	Cycle  PaymentCycle `gorm:"foreignKey:CycleID" json:"cycle,omitempty"`
	Member Member       `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Group  Group        `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
