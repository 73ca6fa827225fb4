package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/services"
)

type CycleHandler struct {
	db     *gorm.DB
	cycles *services.CycleService
	policy *services.Policy
}

func NewCycleHandler(db *gorm.DB, cycles *services.CycleService, policy *services.Policy) *CycleHandler {
	return &CycleHandler{db: db, cycles: cycles, policy: policy}
}

// ActivateCycle starts a payment cycle.
func (h *CycleHandler) ActivateCycle(c echo.Context) error {
	return h.transition(c, h.cycles.Activate, "Cycle %d activated")
}

// CompleteCycle finishes an active cycle and pays out the recipient.
func (h *CycleHandler) CompleteCycle(c echo.Context) error {
	return h.transition(c, h.cycles.Complete, "Cycle %d completed")
}

// SkipCycle marks a cycle as skipped.
func (h *CycleHandler) SkipCycle(c echo.Context) error {
	return h.transition(c, h.cycles.Skip, "Cycle %d skipped")
}

// UnskipCycle restores a skipped cycle to upcoming.
func (h *CycleHandler) UnskipCycle(c echo.Context) error {
	return h.transition(c, h.cycles.Unskip, "Cycle %d restored to upcoming")
}

// ListCycles returns all cycles of a group in rotation order.
func (h *CycleHandler) ListCycles(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	group, err := h.loadGroup(c)
	if err != nil {
		return err
	}
	if err := h.requireView(c, actorID, group); err != nil {
		return err
	}

	var cycles []models.PaymentCycle
	if err := h.db.Where("group_id = ?", group.ID).Order("cycle_number").Find(&cycles).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"cycles":  cycles,
	})
}

// ListCyclePayments returns a cycle's payment ledger with member display
// names resolved.
func (h *CycleHandler) ListCyclePayments(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	group, err := h.loadGroup(c)
	if err != nil {
		return err
	}
	if err := h.requireView(c, actorID, group); err != nil {
		return err
	}

	cycleID, err := paramID(c, "cycleId")
	if err != nil {
		return err
	}
	var cycle models.PaymentCycle
	if err := h.db.Where("id = ? AND group_id = ?", cycleID, group.ID).First(&cycle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Cycle not found")
		}
		return err
	}

	var payments []models.Payment
	if err := h.db.Preload("Member.User").Where("cycle_id = ?", cycle.ID).Order("id").Find(&payments).Error; err != nil {
		return err
	}

	type paymentEntry struct {
		models.Payment
		MemberName string `json:"member_name"`
	}
	entries := make([]paymentEntry, 0, len(payments))
	for _, p := range payments {
		entries = append(entries, paymentEntry{
			Payment:    p,
			MemberName: p.Member.DisplayName().String(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"cycle":    cycle,
		"payments": entries,
	})
}

func (h *CycleHandler) transition(
	c echo.Context,
	fn func(ctx context.Context, groupID, cycleID, actorID uint) (*models.PaymentCycle, error),
	successFormat string,
) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	groupID, err := paramID(c, "groupId")
	if err != nil {
		return err
	}
	cycleID, err := paramID(c, "cycleId")
	if err != nil {
		return err
	}

	cycle, err := fn(c.Request().Context(), groupID, cycleID, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf(successFormat, cycle.CycleNumber),
		"cycle":   cycle,
	})
}

func (h *CycleHandler) loadGroup(c echo.Context) (*models.Group, error) {
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

func (h *CycleHandler) requireView(c echo.Context, actorID uint, group *models.Group) error {
	ok, err := h.policy.Can(c.Request().Context(), actorID, services.ActionViewGroup, group)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("You are not a member of this group")
	}
	return nil
}
