package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// openTestDB creates an isolated in-memory database per test. The DSN is
// keyed by the test name so gorm's connection pool sees the same database on
// every connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// seedGroup creates a leader user, a group with generated cycles, and
// memberCount active members (the first one is the leader's own membership).
// Contribution is 100 per cycle and the group runs for memberCount cycles.
func seedGroup(t *testing.T, db *gorm.DB, memberCount int) (*models.Group, []models.Member) {
	t.Helper()

	leader := models.User{
		FirebaseUID: fmt.Sprintf("uid-%s", t.Name()),
		Email:       "leader@example.com",
		Name:        "Leader",
	}
	if err := db.Create(&leader).Error; err != nil {
		t.Fatalf("Failed to create leader: %v", err)
	}

	group := models.Group{
		Name:               "Test Arisan",
		ContributionAmount: 100,
		Frequency:          models.FrequencyMonthly,
		Duration:           memberCount,
		LeaderID:           leader.ID,
		InviteCode:         fmt.Sprintf("invite-%s", t.Name()),
		StartDate:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}

	members := make([]models.Member, 0, memberCount)
	for i := 0; i < memberCount; i++ {
		m := models.Member{
			GroupID: group.ID,
			Name:    fmt.Sprintf("Member %d", i+1),
			Email:   fmt.Sprintf("member%d@example.com", i+1),
			Role:    models.MemberRoleMember,
			Status:  models.MemberStatusActive,
		}
		if i == 0 {
			m.UserID = &leader.ID
			m.Name = leader.Name
			m.Email = leader.Email
			m.Role = models.MemberRoleLeader
		} else {
			u := models.User{
				FirebaseUID: fmt.Sprintf("uid-%s-%d", t.Name(), i),
				Email:       m.Email,
				Name:        m.Name,
			}
			if err := db.Create(&u).Error; err != nil {
				t.Fatalf("Failed to create user: %v", err)
			}
			m.UserID = &u.ID
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("Failed to create member: %v", err)
		}
		members = append(members, m)
	}

	svc := NewCycleService(db, NewLocalGroupLocker(), NewPolicy(db), nil)
	if err := svc.GenerateCycles(db, &group); err != nil {
		t.Fatalf("Failed to generate cycles: %v", err)
	}

	return &group, members
}

// errMessage returns the client-facing message of an application error, or
// the raw error string for anything else.
func errMessage(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func newTestCycleService(db *gorm.DB) *CycleService {
	return NewCycleService(db, NewLocalGroupLocker(), NewPolicy(db), nil)
}

func newTestPaymentService(db *gorm.DB) *PaymentService {
	return NewPaymentService(db, NewPolicy(db), nil, nil)
}

// cycleByNumber fetches a group's cycle row by its ordinal.
func cycleByNumber(t *testing.T, db *gorm.DB, groupID uint, number int) *models.PaymentCycle {
	t.Helper()
	var cycle models.PaymentCycle
	err := db.Where("group_id = ? AND cycle_number = ?", groupID, number).First(&cycle).Error
	if err != nil {
		t.Fatalf("Failed to load cycle %d: %v", number, err)
	}
	return &cycle
}

// markAllPaid sets every payment of a cycle to paid directly, bypassing the
// service layer.
func markAllPaid(t *testing.T, db *gorm.DB, cycleID uint) {
	t.Helper()
	now := time.Now()
	err := db.Model(&models.Payment{}).Where("cycle_id = ?", cycleID).
		Updates(map[string]interface{}{"status": models.PaymentStatusPaid, "paid_at": now}).Error
	if err != nil {
		t.Fatalf("Failed to mark payments paid: %v", err)
	}
}
