package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/services"
)

type GroupHandler struct {
	db       *gorm.DB
	cache    *services.RedisCache
	policy   *services.Policy
	cycles   *services.CycleService
	notifier *services.Notifier
}

func NewGroupHandler(db *gorm.DB, cache *services.RedisCache, policy *services.Policy, cycles *services.CycleService, notifier *services.Notifier) *GroupHandler {
	return &GroupHandler{db: db, cache: cache, policy: policy, cycles: cycles, notifier: notifier}
}

type createGroupRequest struct {
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	ContributionAmount float64 `json:"contribution_amount"`
	Frequency          string  `json:"frequency"`
	Duration           int     `json:"duration"`
	StartDate          string  `json:"start_date"` // YYYY-MM-DD, defaults to today
}

// CreateGroup creates the group, its leader membership and the upcoming
// cycle rows for the full planned duration in one transaction.
func (h *GroupHandler) CreateGroup(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Invalid("Invalid JSON payload")
	}
	if req.Name == "" {
		return apperr.Invalid("Group name is required")
	}
	if req.ContributionAmount <= 0 {
		return apperr.Invalid("Contribution amount must be positive")
	}
	if req.Duration < 1 {
		return apperr.Invalid("Duration must be at least one cycle")
	}
	freq := models.Frequency(req.Frequency)
	switch freq {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
	case "":
		freq = models.FrequencyMonthly
	default:
		return apperr.Invalid("Frequency must be daily, weekly or monthly")
	}

	startDate := time.Now()
	if req.StartDate != "" {
		startDate, err = time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return apperr.Invalid("start_date must be YYYY-MM-DD")
		}
	}

	var actor models.User
	if err := h.db.First(&actor, actorID).Error; err != nil {
		return err
	}

	group := models.Group{
		Name:               req.Name,
		Description:        req.Description,
		ContributionAmount: req.ContributionAmount,
		Frequency:          freq,
		Duration:           req.Duration,
		LeaderID:           actorID,
		Status:             models.GroupStatusActive,
		InviteCode:         uuid.NewString(),
		StartDate:          startDate,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		leader := models.Member{
			GroupID: group.ID,
			UserID:  &actor.ID,
			Name:    actor.Name,
			Email:   actor.Email,
			Phone:   actor.Phone,
			Role:    models.MemberRoleLeader,
			Status:  models.MemberStatusActive,
		}
		if err := tx.Create(&leader).Error; err != nil {
			return err
		}

		return h.cycles.GenerateCycles(tx, &group)
	})
	if err != nil {
		return err
	}

	services.LogActivity(c.Request().Context(), h.db, group.ID, actorID, "group_created",
		fmt.Sprintf("Group %q created with %d cycles", group.Name, group.Duration), nil)

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"group":   group,
	})
}

// ListGroups returns the groups the current user belongs to or leads.
func (h *GroupHandler) ListGroups(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var groups []models.Group
	err = h.db.
		Joins("LEFT JOIN members ON members.group_id = groups.id AND members.deleted_at IS NULL").
		Where("groups.leader_id = ? OR (members.user_id = ? AND members.status <> ?)",
			actorID, actorID, models.MemberStatusRemoved).
		Distinct().
		Find(&groups).Error
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"groups":  groups,
	})
}

// GetGroup returns one group with its members and cycles.
func (h *GroupHandler) GetGroup(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	groupID, err := paramID(c, "groupId")
	if err != nil {
		return err
	}

	var group models.Group
	if err := h.db.Preload("Members.User").Preload("Cycles").First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Group not found")
		}
		return err
	}

	if err := h.requireView(c, actorID, &group); err != nil {
		return err
	}

	members := make([]memberResponse, 0, len(group.Members))
	for _, m := range group.Members {
		members = append(members, toMemberResponse(m))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"group":   group,
		"members": members,
	})
}

// groupSummary is the cached per-group dashboard aggregate.
type groupSummary struct {
	GroupID      uint    `json:"group_id"`
	MemberCount  int64   `json:"member_count"`
	CurrentCycle *int    `json:"current_cycle"`
	CyclesDone   int64   `json:"cycles_done"`
	TotalPool    float64 `json:"total_pool"`
	PendingCount int64   `json:"pending_count"`
}

// GetGroupSummary returns cached aggregates for the group dashboard.
func (h *GroupHandler) GetGroupSummary(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	groupID, err := paramID(c, "groupId")
	if err != nil {
		return err
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Group not found")
		}
		return err
	}
	if err := h.requireView(c, actorID, &group); err != nil {
		return err
	}

	build := func() (groupSummary, error) {
		s := groupSummary{GroupID: group.ID, CurrentCycle: group.CurrentCycle}
		if err := h.db.Model(&models.Member{}).
			Where("group_id = ? AND status <> ?", group.ID, models.MemberStatusRemoved).
			Count(&s.MemberCount).Error; err != nil {
			return s, err
		}
		if err := h.db.Model(&models.PaymentCycle{}).
			Where("group_id = ? AND status = ?", group.ID, models.CycleStatusCompleted).
			Count(&s.CyclesDone).Error; err != nil {
			return s, err
		}
		if err := h.db.Model(&models.Payment{}).
			Where("group_id = ? AND status <> ?", group.ID, models.PaymentStatusPaid).
			Count(&s.PendingCount).Error; err != nil {
			return s, err
		}
		s.TotalPool = group.ContributionAmount * float64(s.MemberCount)
		return s, nil
	}

	var summary groupSummary
	if h.cache != nil {
		key := fmt.Sprintf("rosca:group-summary:%d", group.ID)
		summary, err = services.GetOrSet(h.cache, c.Request().Context(), key, 30*time.Second, build)
	} else {
		summary, err = build()
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"summary": summary,
	})
}

type joinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

// JoinGroup adds the current user to a group by invite code, pending leader
// approval.
func (h *GroupHandler) JoinGroup(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req joinGroupRequest
	if err := c.Bind(&req); err != nil || req.InviteCode == "" {
		return apperr.Invalid("invite_code is required")
	}

	var group models.Group
	if err := h.db.Where("invite_code = ?", req.InviteCode).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Group not found")
		}
		return err
	}

	var actor models.User
	if err := h.db.First(&actor, actorID).Error; err != nil {
		return err
	}

	var existing models.Member
	err = h.db.Where("group_id = ? AND email = ?", group.ID, actor.Email).First(&existing).Error
	if err == nil {
		if existing.Status != models.MemberStatusRemoved && existing.Status != models.MemberStatusInvited {
			return apperr.Conflict("You are already a member of this group")
		}
		// Re-join after removal, or accept a pending invite.
		existing.UserID = &actor.ID
		existing.Status = models.MemberStatusPending
		if err := h.db.Save(&existing).Error; err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"member":  toMemberResponse(existing),
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	member := models.Member{
		GroupID: group.ID,
		UserID:  &actor.ID,
		Name:    actor.Name,
		Email:   actor.Email,
		Phone:   actor.Phone,
		Role:    models.MemberRoleMember,
		Status:  models.MemberStatusPending,
	}
	if err := h.db.Create(&member).Error; err != nil {
		return err
	}

	if h.notifier != nil {
		_ = h.notifier.Send(c.Request().Context(), services.NotificationInput{
			UserID:  group.LeaderID,
			GroupID: &group.ID,
			Type:    "member_joined",
			Title:   "New join request",
			Message: fmt.Sprintf("%s asked to join %s.", member.DisplayName().String(), group.Name),
		})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"member":  toMemberResponse(member),
	})
}

func (h *GroupHandler) requireView(c echo.Context, actorID uint, group *models.Group) error {
	ok, err := h.policy.Can(c.Request().Context(), actorID, services.ActionViewGroup, group)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("You are not a member of this group")
	}
	return nil
}
