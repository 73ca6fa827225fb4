package models

import (
	"time"

	"gorm.io/gorm"
)

// MemberRole represents the role of a member within a group
type MemberRole string

const (
	MemberRoleLeader    MemberRole = "leader"
	MemberRoleSubLeader MemberRole = "sub_leader"
	MemberRoleMember    MemberRole = "member"
)

// MemberStatus represents the membership status within a group
type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusPending MemberStatus = "pending"
	MemberStatusInvited MemberStatus = "invited"
	MemberStatusRemoved MemberStatus = "removed"
)

// Member is a per-group membership record. Name/Email/Phone are snapshots
// taken at join time and survive changes or deletion of the linked account.
// Members are soft-removed (status set to removed), never deleted.
type Member struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	GroupID uint  `gorm:"index;uniqueIndex:idx_members_group_email,priority:1" json:"group_id"`
	UserID  *uint `gorm:"index" json:"user_id"` // nil for unregistered/guest members

	Name  string `gorm:"type:varchar(255)" json:"name"`
	Email string `gorm:"type:varchar(255);uniqueIndex:idx_members_group_email,priority:2" json:"email"`
	Phone string `gorm:"type:varchar(50)" json:"phone"`

	// PendingName is the legacy invite-details name kept from before snapshot
	// fields existed; only consulted when both snapshot and account are empty.
	PendingName string `gorm:"type:varchar(255)" json:"pending_name,omitempty"`

	Role   MemberRole   `gorm:"type:varchar(20);default:'member'" json:"role"`
	Status MemberStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	HasReceived   bool       `gorm:"default:false" json:"has_received"`
	ReceivedCycle *int       `json:"received_cycle"`
	ReceivedAt    *time.Time `json:"received_at"`
	TotalPaid     float64    `gorm:"type:decimal(15,2);default:0" json:"total_paid"`
	TotalReceived float64    `gorm:"type:decimal(15,2);default:0" json:"total_received"`

	// Relationships
	Group Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	User  *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// EligibleForPayments reports whether a payment record must be created for
// this member when a cycle activates.
func (m Member) EligibleForPayments() bool {
	return m.Status == MemberStatusActive || m.Status == MemberStatusPending
}

// NameSource identifies which of the prioritized sources resolved a display name.
type NameSource int

const (
	NameSourceNone     NameSource = iota // nothing resolved
	NameSourceSnapshot                   // group-level snapshot name
	NameSourceAccount                    // linked account's live profile name
	NameSourcePending                    // legacy pending-details name
)

// ResolvedName is the result of display-name resolution. Known reports whether
// any source produced a name; String falls back to "Unknown".
type ResolvedName struct {
	Name   string
	Source NameSource
}

func (r ResolvedName) Known() bool { return r.Source != NameSourceNone }

func (r ResolvedName) String() string {
	if !r.Known() {
		return "Unknown"
	}
	return r.Name
}

// ResolveDisplayName resolves a member display name over the three optional
// sources in priority order: snapshot, live account name, legacy pending name.
func ResolveDisplayName(snapshot, account, pending string) ResolvedName {
	if snapshot != "" {
		return ResolvedName{Name: snapshot, Source: NameSourceSnapshot}
	}
	if account != "" {
		return ResolvedName{Name: account, Source: NameSourceAccount}
	}
	if pending != "" {
		return ResolvedName{Name: pending, Source: NameSourcePending}
	}
	return ResolvedName{}
}

// DisplayName resolves the member's display name. The User relation must be
// preloaded for the live-account tier to participate.
func (m Member) DisplayName() ResolvedName {
	account := ""
	if m.User != nil {
		account = m.User.Name
	}
	return ResolveDisplayName(m.Name, account, m.PendingName)
}
