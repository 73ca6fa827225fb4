package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/services"
	"github.com/Rila-coder/ROSCA-System-sub002/pkg/logging"
)

// reminderCooldown keeps the sweep from re-nagging the same member for the
// same cycle on every tick.
const reminderCooldown = 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment")
	}
	logging.Setup()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	notifier := services.NewNotifier(db, services.NewEmailService(), services.NewWhatsappService())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		slog.Info("Shutting down reminder worker")
		cancel()
	}()

	interval := 15 * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Reminder worker started", "interval", interval)
	sweep(ctx, db, notifier)

	for {
		select {
		case <-ticker.C:
			sweep(ctx, db, notifier)
		case <-ctx.Done():
			return
		}
	}
}

// sweep finds active cycles past their due date and nudges every member who
// still has a pending payment.
func sweep(ctx context.Context, db *gorm.DB, notifier *services.Notifier) {
	var cycles []models.PaymentCycle
	err := db.WithContext(ctx).
		Where("status = ? AND due_date <= ?", models.CycleStatusActive, time.Now()).
		Find(&cycles).Error
	if err != nil {
		slog.Error("Failed to load overdue cycles", "error", err)
		return
	}
	if len(cycles) == 0 {
		return
	}

	for _, cycle := range cycles {
		if ctx.Err() != nil {
			return
		}
		remindCycle(ctx, db, notifier, &cycle)
	}
}

func remindCycle(ctx context.Context, db *gorm.DB, notifier *services.Notifier, cycle *models.PaymentCycle) {
	var group models.Group
	if err := db.WithContext(ctx).First(&group, cycle.GroupID).Error; err != nil {
		slog.Error("Failed to load group for cycle", "cycle_id", cycle.ID, "error", err)
		return
	}

	var pending []models.Payment
	err := db.WithContext(ctx).
		Where("cycle_id = ? AND status <> ?", cycle.ID, models.PaymentStatusPaid).
		Find(&pending).Error
	if err != nil {
		slog.Error("Failed to load pending payments", "cycle_id", cycle.ID, "error", err)
		return
	}

	sent := 0
	for _, payment := range pending {
		var member models.Member
		if err := db.WithContext(ctx).First(&member, payment.MemberID).Error; err != nil {
			continue
		}
		if member.UserID == nil || member.Status == models.MemberStatusRemoved {
			continue
		}
		if recentlyReminded(ctx, db, *member.UserID, cycle.ID) {
			continue
		}

		groupID := group.ID
		err := notifier.Send(ctx, services.NotificationInput{
			UserID:   *member.UserID,
			GroupID:  &groupID,
			Type:     "payment_reminder",
			Title:    fmt.Sprintf("Payment due for %s", group.Name),
			Message: fmt.Sprintf("Cycle %d of %s is past its due date and your contribution of %.2f is still pending.",
				cycle.CycleNumber, group.Name, group.ContributionAmount),
			Priority: models.NotificationPriorityHigh,
			Data: map[string]interface{}{
				"group_id": group.ID,
				"cycle_id": cycle.ID,
			},
		})
		if err != nil {
			slog.Error("Failed to send reminder", "user_id", *member.UserID, "cycle_id", cycle.ID, "error", err)
			continue
		}
		sent++
	}

	if sent > 0 {
		slog.Info("Sent payment reminders", "group_id", group.ID, "cycle", cycle.CycleNumber, "count", sent)
	}
}

func recentlyReminded(ctx context.Context, db *gorm.DB, userID, cycleID uint) bool {
	var count int64
	err := db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND type = ? AND created_at > ?", userID, "payment_reminder", time.Now().Add(-reminderCooldown)).
		Where("data ->> 'cycle_id' = ?", fmt.Sprint(cycleID)).
		Count(&count).Error
	if err != nil {
		return false
	}
	return count > 0
}
