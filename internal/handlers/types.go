package handlers

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// memberResponse is the wire shape for member data with the display name
// already resolved through the snapshot/account/legacy fallback chain.
type memberResponse struct {
	ID            uint                `json:"id"`
	GroupID       uint                `json:"group_id"`
	UserID        *uint               `json:"user_id"`
	Name          string              `json:"name"`
	Email         string              `json:"email"`
	Phone         string              `json:"phone"`
	Role          models.MemberRole   `json:"role"`
	Status        models.MemberStatus `json:"status"`
	HasReceived   bool                `json:"has_received"`
	ReceivedCycle *int                `json:"received_cycle"`
	TotalPaid     float64             `json:"total_paid"`
	TotalReceived float64             `json:"total_received"`
}

func toMemberResponse(m models.Member) memberResponse {
	return memberResponse{
		ID:            m.ID,
		GroupID:       m.GroupID,
		UserID:        m.UserID,
		Name:          m.DisplayName().String(),
		Email:         m.Email,
		Phone:         m.Phone,
		Role:          m.Role,
		Status:        m.Status,
		HasReceived:   m.HasReceived,
		ReceivedCycle: m.ReceivedCycle,
		TotalPaid:     m.TotalPaid,
		TotalReceived: m.TotalReceived,
	}
}

// getUintFromContext safely reads a uint value set by middleware.
func getUintFromContext(c echo.Context, key string) uint {
	val := c.Get(key)
	if val == nil {
		return 0
	}
	uintVal, ok := val.(uint)
	if !ok {
		return 0
	}
	return uintVal
}

// currentUserID returns the authenticated local user id.
func currentUserID(c echo.Context) (uint, error) {
	id := getUintFromContext(c, "userID")
	if id == 0 {
		return 0, apperr.Unauthorized("Please log in to continue")
	}
	return id, nil
}

// paramID parses a numeric path parameter.
func paramID(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("Invalid %s", name)
	}
	return uint(id), nil
}
