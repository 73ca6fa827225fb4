package services

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// LogActivity appends an audit entry for a group action. Audit logging is
// best-effort: a failed insert is logged but never fails the caller.
func LogActivity(ctx context.Context, db *gorm.DB, groupID, userID uint, activityType, description string, metadata map[string]interface{}) {
	entry := models.ActivityLog{
		GroupID:     groupID,
		UserID:      userID,
		Type:        activityType,
		Description: description,
		Metadata:    metadata,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		slog.Error("Failed to record activity", "group_id", groupID, "type", activityType, "error", err)
	}
}
