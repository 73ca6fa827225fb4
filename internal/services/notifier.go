package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// NotificationInput describes one notification to record and dispatch.
type NotificationInput struct {
	UserID   uint
	GroupID  *uint
	Type     string
	Title    string
	Message  string
	Priority models.NotificationPriority
	Data     map[string]interface{}
}

// Notifier persists notifications and fans them out over the user's preferred
// channel. Channel delivery is best-effort: failures are logged, never
// propagated, and never block the triggering request.
type Notifier struct {
	db       *gorm.DB
	email    *EmailService
	whatsapp *WhatsappService
}

func NewNotifier(db *gorm.DB, email *EmailService, whatsapp *WhatsappService) *Notifier {
	return &Notifier{db: db, email: email, whatsapp: whatsapp}
}

// Send records the notification and attempts channel delivery.
func (n *Notifier) Send(ctx context.Context, in NotificationInput) error {
	if in.Priority == "" {
		in.Priority = models.NotificationPriorityNormal
	}

	notif := models.Notification{
		UserID:   in.UserID,
		GroupID:  in.GroupID,
		Type:     in.Type,
		Title:    in.Title,
		Message:  in.Message,
		Priority: in.Priority,
		Data:     in.Data,
	}
	if err := n.db.WithContext(ctx).Create(&notif).Error; err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	NotificationsSent.WithLabelValues(in.Type).Inc()

	n.dispatch(ctx, in)
	return nil
}

// NotifyGroupMembers sends the notification to every current member of the
// group that has a linked account, skipping removed members.
func (n *Notifier) NotifyGroupMembers(ctx context.Context, groupID uint, in NotificationInput) error {
	var members []models.Member
	err := n.db.WithContext(ctx).
		Where("group_id = ? AND status <> ? AND user_id IS NOT NULL", groupID, models.MemberStatusRemoved).
		Find(&members).Error
	if err != nil {
		return err
	}

	in.GroupID = &groupID
	for _, m := range members {
		msg := in
		msg.UserID = *m.UserID
		if err := n.Send(ctx, msg); err != nil {
			slog.Error("Failed to notify group member", "group_id", groupID, "member_id", m.ID, "error", err)
		}
	}
	return nil
}

func (n *Notifier) dispatch(ctx context.Context, in NotificationInput) {
	var pref models.NotificationPreference
	err := n.db.WithContext(ctx).Where("user_id = ?", in.UserID).First(&pref).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("Failed to load notification preference", "user_id", in.UserID, "error", err)
		}
		return // in-app only
	}

	var user models.User
	if err := n.db.WithContext(ctx).First(&user, in.UserID).Error; err != nil {
		slog.Error("Failed to load user for notification", "user_id", in.UserID, "error", err)
		return
	}

	switch pref.Channel {
	case models.NotificationChannelEmail:
		if n.email == nil || !n.email.Configured() {
			return
		}
		if err := n.email.SendEmail([]string{user.Email}, in.Title, in.Message); err != nil {
			slog.Warn("Email delivery failed", "user_id", in.UserID, "error", err)
		}
	case models.NotificationChannelWhatsapp:
		if n.whatsapp == nil {
			return
		}
		target := user.Phone
		if pref.WhatsappTargetType == models.WhatsappTargetTypeGroup {
			target = pref.WhatsappGroupID
		}
		if target == "" {
			return
		}
		if err := n.whatsapp.SendMessage(target, in.Title+"\n"+in.Message); err != nil {
			slog.Warn("WhatsApp delivery failed", "user_id", in.UserID, "error", err)
		}
	case models.NotificationChannelNone:
		// explicitly disabled
	}
}
