package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/services"
)

type MemberHandler struct {
	db       *gorm.DB
	policy   *services.Policy
	notifier *services.Notifier
}

func NewMemberHandler(db *gorm.DB, policy *services.Policy, notifier *services.Notifier) *MemberHandler {
	return &MemberHandler{db: db, policy: policy, notifier: notifier}
}

// ListMembers returns all members of a group with resolved display names.
func (h *MemberHandler) ListMembers(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	group, err := h.loadGroup(c)
	if err != nil {
		return err
	}
	if err := h.require(c, actorID, services.ActionViewGroup, group, "You are not a member of this group"); err != nil {
		return err
	}

	var members []models.Member
	if err := h.db.Preload("User").Where("group_id = ?", group.ID).Order("id").Find(&members).Error; err != nil {
		return err
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"members": out,
	})
}

type addMemberRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	UserID *uint  `json:"user_id"`
}

// AddMember invites a member into the group. Unregistered people can be added
// by snapshot details alone; the membership gets linked when they sign up and
// join with the invite code.
func (h *MemberHandler) AddMember(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	group, err := h.loadGroup(c)
	if err != nil {
		return err
	}
	if err := h.require(c, actorID, services.ActionManageMembers, group, "Only leaders can manage members"); err != nil {
		return err
	}

	var req addMemberRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Invalid("Invalid JSON payload")
	}
	if req.Email == "" {
		return apperr.Invalid("Email is required")
	}

	var count int64
	if err := h.db.Model(&models.Member{}).
		Where("group_id = ? AND email = ?", group.ID, req.Email).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("A member with this email already exists in this group")
	}

	member := models.Member{
		GroupID: group.ID,
		UserID:  req.UserID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Role:    models.MemberRoleMember,
		Status:  models.MemberStatusInvited,
	}
	if err := h.db.Create(&member).Error; err != nil {
		return err
	}

	services.LogActivity(c.Request().Context(), h.db, group.ID, actorID, "member_invited",
		fmt.Sprintf("%s invited to the group", member.DisplayName().String()),
		map[string]interface{}{"member_id": member.ID})

	if h.notifier != nil && member.UserID != nil {
		_ = h.notifier.Send(c.Request().Context(), services.NotificationInput{
			UserID:  *member.UserID,
			GroupID: &group.ID,
			Type:    "member_invited",
			Title:   "Group invitation",
			Message: fmt.Sprintf("You have been invited to join %s.", group.Name),
		})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"member":  toMemberResponse(member),
	})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateMemberRole promotes or demotes a member. The leader role itself is
// bound to group.leader_id and cannot be reassigned here.
func (h *MemberHandler) UpdateMemberRole(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	group, err := h.loadGroup(c)
	if err != nil {
		return err
	}
	if err := h.require(c, actorID, services.ActionManageMembers, group, "Only leaders can manage members"); err != nil {
		return err
	}

	member, err := h.loadMember(c, group.ID)
	if err != nil {
		return err
	}

	var req updateRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Invalid("Invalid JSON payload")
	}
	role := models.MemberRole(req.Role)
	if role != models.MemberRoleSubLeader && role != models.MemberRoleMember {
		return apperr.Invalid("Role must be sub_leader or member")
	}
	if member.Role == models.MemberRoleLeader {
		return apperr.Conflict("The group leader's role cannot be changed")
	}

	member.Role = role
	if err := h.db.Save(member).Error; err != nil {
		return err
	}

	services.LogActivity(c.Request().Context(), h.db, group.ID, actorID, "member_role_changed",
		fmt.Sprintf("%s is now %s", member.DisplayName().String(), role),
		map[string]interface{}{"member_id": member.ID, "role": string(role)})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"member":  toMemberResponse(*member),
	})
}

// RemoveMember soft-removes a member; the row and its financial snapshot are
// kept.
func (h *MemberHandler) RemoveMember(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	group, err := h.loadGroup(c)
	if err != nil {
		return err
	}
	if err := h.require(c, actorID, services.ActionManageMembers, group, "Only leaders can manage members"); err != nil {
		return err
	}

	member, err := h.loadMember(c, group.ID)
	if err != nil {
		return err
	}
	if member.Role == models.MemberRoleLeader {
		return apperr.Conflict("The group leader cannot be removed")
	}

	member.Status = models.MemberStatusRemoved
	if err := h.db.Save(member).Error; err != nil {
		return err
	}

	services.LogActivity(c.Request().Context(), h.db, group.ID, actorID, "member_removed",
		fmt.Sprintf("%s removed from the group", member.DisplayName().String()),
		map[string]interface{}{"member_id": member.ID})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"member":  toMemberResponse(*member),
	})
}

func (h *MemberHandler) loadGroup(c echo.Context) (*models.Group, error) {
	groupID, err := paramID(c, "groupId")
	if err != nil {
		return nil, err
	}
	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Group not found")
		}
		return nil, err
	}
	return &group, nil
}

func (h *MemberHandler) loadMember(c echo.Context, groupID uint) (*models.Member, error) {
	memberID, err := paramID(c, "memberId")
	if err != nil {
		return nil, err
	}
	var member models.Member
	if err := h.db.Preload("User").Where("id = ? AND group_id = ?", memberID, groupID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Member not found")
		}
		return nil, err
	}
	return &member, nil
}

func (h *MemberHandler) require(c echo.Context, actorID uint, action services.Action, group *models.Group, denied string) error {
	ok, err := h.policy.Can(c.Request().Context(), actorID, action, group)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("%s", denied)
	}
	return nil
}
