package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/services"
)

type PaymentHandler struct {
	db       *gorm.DB
	payments *services.PaymentService
}

func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{db: db, payments: payments}
}

// MarkPaid verifies a payment on behalf of a leader or sub-leader.
func (h *PaymentHandler) MarkPaid(c echo.Context) error {
	actorID, groupID, paymentID, err := h.params(c)
	if err != nil {
		return err
	}

	payment, err := h.payments.MarkPaid(c.Request().Context(), groupID, paymentID, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"payment": payment,
		"message": "Payment marked as paid",
	})
}

// MarkUnpaid reverses a payment verification.
func (h *PaymentHandler) MarkUnpaid(c echo.Context) error {
	actorID, groupID, paymentID, err := h.params(c)
	if err != nil {
		return err
	}

	payment, err := h.payments.MarkUnpaid(c.Request().Context(), groupID, paymentID, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"payment": payment,
		"message": "Payment marked as unpaid",
	})
}

type bulkMarkPaidRequest struct {
	PaymentIDs []uint `json:"paymentIds"`
}

// BulkMarkPaid verifies a batch of payments in one unordered update.
func (h *PaymentHandler) BulkMarkPaid(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	groupID, err := paramID(c, "groupId")
	if err != nil {
		return err
	}

	var req bulkMarkPaidRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Invalid("Invalid JSON payload")
	}

	updated, err := h.payments.BulkMarkPaid(c.Request().Context(), groupID, req.PaymentIDs, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": updated,
		"message": "Payments marked as paid",
	})
}

// InitiatePayment creates a gateway transaction for the member's own pending
// contribution.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	actorID, groupID, paymentID, err := h.params(c)
	if err != nil {
		return err
	}

	result, err := h.payments.InitiateOnlinePayment(c.Request().Context(), groupID, paymentID, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"token":        result.Token,
		"redirect_url": result.RedirectURL,
	})
}

// MidtransCallback handles gateway payment notifications. Unauthenticated:
// the gateway calls it directly.
func (h *PaymentHandler) MidtransCallback(c echo.Context) error {
	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return apperr.Invalid("Invalid JSON payload")
	}

	if err := h.payments.HandleGatewayCallback(c.Request().Context(), payload); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentHandler) params(c echo.Context) (actorID, groupID, paymentID uint, err error) {
	actorID, err = currentUserID(c)
	if err != nil {
		return
	}
	groupID, err = paramID(c, "groupId")
	if err != nil {
		return
	}
	paymentID, err = paramID(c, "paymentId")
	return
}
