package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

type NotificationHandler struct {
	db *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// ListNotifications returns the current user's notifications, newest first.
func (h *NotificationHandler) ListNotifications(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}

	query := h.db.Where("user_id = ?", actorID).Order("created_at desc").Limit(100)
	if c.QueryParam("unread") == "true" {
		query = query.Where("read = ?", false)
	}

	var notifications []models.Notification
	if err := query.Find(&notifications).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"notifications": notifications,
	})
}

// MarkRead marks one of the user's notifications as read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}
	notifID, err := paramID(c, "notificationId")
	if err != nil {
		return err
	}

	var notif models.Notification
	if err := h.db.Where("id = ? AND user_id = ?", notifID, actorID).First(&notif).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Notification not found")
		}
		return err
	}

	notif.Read = true
	if err := h.db.Save(&notif).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"notification": notif,
	})
}

type preferenceRequest struct {
	Channel            string `json:"channel"`
	WhatsappTargetType string `json:"whatsapp_target_type"`
	WhatsappGroupID    string `json:"whatsapp_group_id"`
}

// GetPreference returns the user's delivery preference, defaulting to email.
func (h *NotificationHandler) GetPreference(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var pref models.NotificationPreference
	err = h.db.Where("user_id = ?", actorID).First(&pref).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		pref = models.NotificationPreference{
			UserID:             actorID,
			Channel:            models.NotificationChannelEmail,
			WhatsappTargetType: models.WhatsappTargetTypePersonal,
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"preference": pref,
	})
}

// UpdatePreference upserts the user's delivery preference.
func (h *NotificationHandler) UpdatePreference(c echo.Context) error {
	actorID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req preferenceRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Invalid("Invalid JSON payload")
	}
	channel := models.NotificationChannel(req.Channel)
	switch channel {
	case models.NotificationChannelEmail, models.NotificationChannelWhatsapp, models.NotificationChannelNone:
	default:
		return apperr.Invalid("Channel must be email, whatsapp or none")
	}

	var pref models.NotificationPreference
	err = h.db.Where("user_id = ?", actorID).First(&pref).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		pref = models.NotificationPreference{UserID: actorID}
	}

	pref.Channel = channel
	pref.WhatsappTargetType = req.WhatsappTargetType
	pref.WhatsappGroupID = req.WhatsappGroupID

	if err := h.db.Save(&pref).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"preference": pref,
	})
}
