package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// PaymentGateway is the slice of the Midtrans client the ledger needs.
type PaymentGateway interface {
	CreateTransaction(orderID string, amount int64, param *snap.Request) (*snap.Response, error)
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, error)
}

// PaymentService implements the payment ledger operations: manual
// verification by leaders and online self-payment through the gateway.
type PaymentService struct {
	db       *gorm.DB
	policy   *Policy
	notifier *Notifier
	gateway  PaymentGateway
}

func NewPaymentService(db *gorm.DB, policy *Policy, notifier *Notifier, gateway PaymentGateway) *PaymentService {
	return &PaymentService{db: db, policy: policy, notifier: notifier, gateway: gateway}
}

// MarkPaid verifies a payment. Deliberately permissive: calling it on an
// already-paid payment just resets paid_at/verified_by. The member's running
// total only moves on an actual pending->paid change.
func (p *PaymentService) MarkPaid(ctx context.Context, groupID, paymentID, actorID uint) (*models.Payment, error) {
	group, payment, err := p.loadGroupPayment(ctx, groupID, paymentID)
	if err != nil {
		return nil, err
	}
	if err := p.authorizeVerification(ctx, actorID, group); err != nil {
		return nil, err
	}

	wasPaid := payment.Status == models.PaymentStatusPaid
	now := time.Now()
	payment.Status = models.PaymentStatusPaid
	payment.PaidAt = &now
	payment.VerifiedBy = &actorID
	if payment.Gateway == "" {
		payment.Gateway = models.PaymentGatewayManual
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(payment).Error; err != nil {
			return err
		}
		if !wasPaid {
			return tx.Model(&models.Member{}).Where("id = ?", payment.MemberID).
				Update("total_paid", gorm.Expr("total_paid + ?", payment.Amount)).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	PaymentVerifications.WithLabelValues("mark_paid").Inc()

	LogActivity(ctx, p.db, groupID, actorID, "payment_verified",
		fmt.Sprintf("Payment %d marked as paid", payment.ID),
		map[string]interface{}{"payment_id": payment.ID, "cycle_id": payment.CycleID, "member_id": payment.MemberID})

	p.notifyPaymentChange(ctx, payment, "payment_verified", "Payment confirmed",
		"Your contribution has been confirmed by a group leader.", models.NotificationPriorityNormal)

	return payment, nil
}

// MarkUnpaid reverses a verification: status back to pending, paid_at and
// verified_by cleared. Flagged to the member with high priority since a
// status regression is more urgent than a confirmation.
func (p *PaymentService) MarkUnpaid(ctx context.Context, groupID, paymentID, actorID uint) (*models.Payment, error) {
	group, payment, err := p.loadGroupPayment(ctx, groupID, paymentID)
	if err != nil {
		return nil, err
	}
	if err := p.authorizeVerification(ctx, actorID, group); err != nil {
		return nil, err
	}

	wasPaid := payment.Status == models.PaymentStatusPaid
	payment.Status = models.PaymentStatusPending
	payment.PaidAt = nil
	payment.VerifiedBy = nil

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(payment).Error; err != nil {
			return err
		}
		if wasPaid {
			return tx.Model(&models.Member{}).Where("id = ?", payment.MemberID).
				Update("total_paid", gorm.Expr("total_paid - ?", payment.Amount)).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	PaymentVerifications.WithLabelValues("mark_unpaid").Inc()

	LogActivity(ctx, p.db, groupID, actorID, "payment_unverified",
		fmt.Sprintf("Payment %d marked as unpaid", payment.ID),
		map[string]interface{}{"payment_id": payment.ID, "cycle_id": payment.CycleID, "member_id": payment.MemberID})

	p.notifyPaymentChange(ctx, payment, "payment_unverified", "Payment verification removed",
		"Your contribution was marked as unpaid. Please contact your group leader.", models.NotificationPriorityHigh)

	return payment, nil
}

// BulkMarkPaid verifies every still-pending payment in the id list with a
// single verifier and timestamp. Ids outside the group and already-paid
// entries are skipped. Each flipped payment credits the member's running
// total, the same movement MarkPaid makes, so a later MarkUnpaid debits
// cleanly.
func (p *PaymentService) BulkMarkPaid(ctx context.Context, groupID uint, paymentIDs []uint, actorID uint) (int64, error) {
	var group models.Group
	if err := p.db.WithContext(ctx).First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("Group not found")
		}
		return 0, err
	}
	if err := p.authorizeVerification(ctx, actorID, &group); err != nil {
		return 0, err
	}
	if len(paymentIDs) == 0 {
		return 0, apperr.Invalid("paymentIds must not be empty")
	}

	now := time.Now()
	var flipped int64
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payments []models.Payment
		if err := tx.Where("id IN ? AND group_id = ? AND status = ?",
			paymentIDs, groupID, models.PaymentStatusPending).Find(&payments).Error; err != nil {
			return err
		}
		for i := range payments {
			payment := &payments[i]
			payment.Status = models.PaymentStatusPaid
			payment.PaidAt = &now
			payment.VerifiedBy = &actorID
			if payment.Gateway == "" {
				payment.Gateway = models.PaymentGatewayManual
			}
			if err := tx.Save(payment).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Member{}).Where("id = ?", payment.MemberID).
				Update("total_paid", gorm.Expr("total_paid + ?", payment.Amount)).Error; err != nil {
				return err
			}
		}
		flipped = int64(len(payments))
		return nil
	})
	if err != nil {
		return 0, err
	}
	PaymentVerifications.WithLabelValues("bulk_mark_paid").Inc()

	LogActivity(ctx, p.db, groupID, actorID, "payments_bulk_verified",
		fmt.Sprintf("%d payments marked as paid", flipped),
		map[string]interface{}{"payment_ids": paymentIDs})

	return flipped, nil
}

// OnlinePaymentResult holds the Snap handoff for the client.
type OnlinePaymentResult struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// InitiateOnlinePayment creates a Snap transaction so a member can settle
// their own pending contribution through the gateway.
func (p *PaymentService) InitiateOnlinePayment(ctx context.Context, groupID, paymentID, actorID uint) (*OnlinePaymentResult, error) {
	if p.gateway == nil {
		return nil, apperr.Invalid("Online payments are not enabled")
	}

	group, payment, err := p.loadGroupPayment(ctx, groupID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID == nil || *payment.UserID != actorID {
		return nil, apperr.Forbidden("You can only pay your own contribution")
	}
	if payment.Status == models.PaymentStatusPaid {
		return nil, apperr.Conflict("Payment is already paid")
	}

	var member models.Member
	if err := p.db.WithContext(ctx).Preload("User").First(&member, payment.MemberID).Error; err != nil {
		return nil, err
	}

	orderID := fmt.Sprintf("rosca-payment-%d-%d", payment.ID, time.Now().Unix())
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: int64(payment.Amount),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: member.DisplayName().String(),
			Email: member.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    fmt.Sprintf("cycle-%d", payment.CycleID),
				Name:  fmt.Sprintf("Contribution for %s", group.Name),
				Price: int64(payment.Amount),
				Qty:   1,
			},
		},
	}

	resp, err := p.gateway.CreateTransaction(orderID, int64(payment.Amount), req)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	payment.OrderID = orderID
	payment.Gateway = models.PaymentGatewayMidtrans
	if err := p.db.WithContext(ctx).Save(payment).Error; err != nil {
		return nil, err
	}

	return &OnlinePaymentResult{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// HandleGatewayCallback processes a Midtrans notification. The raw payload is
// always archived before any state change.
func (p *PaymentService) HandleGatewayCallback(ctx context.Context, payload map[string]interface{}) error {
	raw, _ := json.Marshal(payload)
	orderID, _ := payload["order_id"].(string)
	history := models.PaymentCallbackHistory{
		PaymentGateway: models.PaymentGatewayMidtrans,
		OrderID:        orderID,
		Metadata:       raw,
	}
	if err := p.db.WithContext(ctx).Create(&history).Error; err != nil {
		slog.Error("Failed to archive gateway callback", "order_id", orderID, "error", err)
	}

	paymentID, err := parseOrderID(orderID)
	if err != nil {
		return apperr.Invalid("Invalid order ID format")
	}

	var payment models.Payment
	if err := p.db.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Payment not found")
		}
		return err
	}

	transactionStatus, _ := payload["transaction_status"].(string)
	fraudStatus, _ := payload["fraud_status"].(string)
	channel, _ := payload["payment_type"].(string)

	// With a gateway client configured, the authoritative status comes from
	// the transactions API, not the callback body.
	if p.gateway != nil {
		status, err := p.gateway.CheckTransaction(orderID)
		if err != nil {
			return apperr.Internal(err)
		}
		transactionStatus = status.TransactionStatus
		fraudStatus = status.FraudStatus
		if status.PaymentType != "" {
			channel = status.PaymentType
		}
	}

	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return p.settleFromGateway(ctx, &payment, channel)
		}
	case "settlement":
		return p.settleFromGateway(ctx, &payment, channel)
	case "deny", "expire", "cancel":
		// Keep pending; the member can retry or pay manually.
		slog.Info("Gateway transaction not settled", "order_id", orderID, "status", transactionStatus)
	}
	return nil
}

// settleFromGateway marks a payment paid on a settled gateway notification.
// Idempotent: repeated settlement callbacks are ignored.
func (p *PaymentService) settleFromGateway(ctx context.Context, payment *models.Payment, channel string) error {
	if payment.Status == models.PaymentStatusPaid {
		return nil
	}

	now := time.Now()
	payment.Status = models.PaymentStatusPaid
	payment.PaidAt = &now
	payment.Gateway = models.PaymentGatewayMidtrans
	payment.Channel = channel

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(payment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Member{}).Where("id = ?", payment.MemberID).
			Update("total_paid", gorm.Expr("total_paid + ?", payment.Amount)).Error
	})
	if err != nil {
		return err
	}
	PaymentVerifications.WithLabelValues("gateway_settled").Inc()

	if payment.UserID != nil {
		LogActivity(ctx, p.db, payment.GroupID, *payment.UserID, "payment_settled",
			fmt.Sprintf("Payment %d settled via gateway", payment.ID),
			map[string]interface{}{"payment_id": payment.ID, "channel": channel})
	}

	p.notifyPaymentChange(ctx, payment, "payment_settled", "Payment received",
		"Your online contribution has been received.", models.NotificationPriorityNormal)
	return nil
}

func (p *PaymentService) loadGroupPayment(ctx context.Context, groupID, paymentID uint) (*models.Group, *models.Payment, error) {
	var group models.Group
	if err := p.db.WithContext(ctx).First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("Group not found")
		}
		return nil, nil, err
	}

	var payment models.Payment
	if err := p.db.WithContext(ctx).Where("id = ? AND group_id = ?", paymentID, groupID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("Payment not found")
		}
		return nil, nil, err
	}

	return &group, &payment, nil
}

func (p *PaymentService) authorizeVerification(ctx context.Context, actorID uint, group *models.Group) error {
	ok, err := p.policy.Can(ctx, actorID, ActionVerifyPayment, group)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("Only leaders and sub-leaders can verify payments")
	}
	return nil
}

func (p *PaymentService) notifyPaymentChange(ctx context.Context, payment *models.Payment, notifType, title, message string, priority models.NotificationPriority) {
	if p.notifier == nil || payment.UserID == nil {
		return
	}
	if err := p.notifier.Send(ctx, NotificationInput{
		UserID:   *payment.UserID,
		GroupID:  &payment.GroupID,
		Type:     notifType,
		Title:    title,
		Message:  message,
		Priority: priority,
		Data:     map[string]interface{}{"payment_id": payment.ID, "cycle_id": payment.CycleID},
	}); err != nil {
		slog.Error("Failed to notify payment change", "payment_id", payment.ID, "error", err)
	}
}

// parseOrderID extracts the payment id from "rosca-payment-{id}-{timestamp}".
func parseOrderID(orderID string) (uint, error) {
	parts := strings.Split(orderID, "-")
	if len(parts) != 4 || parts[0] != "rosca" || parts[1] != "payment" {
		return 0, fmt.Errorf("unexpected order id %q", orderID)
	}
	id, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
