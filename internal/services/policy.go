package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// Action is a privileged operation checked by Policy.
type Action string

const (
	// ActionTransitionCycle covers activate/complete/skip/unskip. Reserved
	// for the exact group leader; sub-leaders cannot transition cycles.
	ActionTransitionCycle Action = "transition_cycle"
	// ActionVerifyPayment covers mark-paid/mark-unpaid/bulk mark-paid.
	ActionVerifyPayment Action = "verify_payment"
	// ActionManageMembers covers add/invite/remove and role changes.
	ActionManageMembers Action = "manage_members"
	// ActionViewGroup covers read access to a group's members, cycles and
	// payments. Any non-removed member qualifies.
	ActionViewGroup Action = "view_group"
)

// Policy is the single authorization check used by every handler, replacing
// per-endpoint role derivation.
type Policy struct {
	db *gorm.DB
}

func NewPolicy(db *gorm.DB) *Policy {
	return &Policy{db: db}
}

// Can reports whether the actor may perform action on the group.
func (p *Policy) Can(ctx context.Context, actorUserID uint, action Action, group *models.Group) (bool, error) {
	switch action {
	case ActionTransitionCycle:
		return group.LeaderID == actorUserID, nil
	case ActionVerifyPayment, ActionManageMembers:
		if group.LeaderID == actorUserID {
			return true, nil
		}
		var member models.Member
		err := p.db.WithContext(ctx).
			Where("group_id = ? AND user_id = ? AND status = ?", group.ID, actorUserID, models.MemberStatusActive).
			First(&member).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		return member.Role == models.MemberRoleLeader || member.Role == models.MemberRoleSubLeader, nil
	case ActionViewGroup:
		if group.LeaderID == actorUserID {
			return true, nil
		}
		var count int64
		err := p.db.WithContext(ctx).Model(&models.Member{}).
			Where("group_id = ? AND user_id = ? AND status <> ?", group.ID, actorUserID, models.MemberStatusRemoved).
			Count(&count).Error
		if err != nil {
			return false, err
		}
		return count > 0, nil
	default:
		return false, nil
	}
}
