package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

func TestGenerateCyclesMatchesDuration(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)

	var cycles []models.PaymentCycle
	if err := db.Where("group_id = ?", group.ID).Order("cycle_number").Find(&cycles).Error; err != nil {
		t.Fatalf("Failed to load cycles: %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("Expected 3 cycles, got %d", len(cycles))
	}
	for i, c := range cycles {
		if c.CycleNumber != i+1 {
			t.Errorf("Cycle %d has number %d", i, c.CycleNumber)
		}
		if c.Status != models.CycleStatusUpcoming {
			t.Errorf("Cycle %d status = %s, want upcoming", c.CycleNumber, c.Status)
		}
		if c.Amount != group.ContributionAmount {
			t.Errorf("Cycle %d amount = %v, want %v", c.CycleNumber, c.Amount, group.ContributionAmount)
		}
	}
	if !cycles[1].DueDate.After(cycles[0].DueDate) {
		t.Errorf("Due dates not increasing: %v then %v", cycles[0].DueDate, cycles[1].DueDate)
	}
}

func TestActivateCreatesPaymentsForEligibleMembers(t *testing.T) {
	db := openTestDB(t)
	group, members := seedGroup(t, db, 3)
	svc := newTestCycleService(db)

	// An invited member and a removed member must not get payment records.
	for _, status := range []models.MemberStatus{models.MemberStatusInvited, models.MemberStatusRemoved} {
		m := models.Member{
			GroupID: group.ID,
			Name:    fmt.Sprintf("%s member", status),
			Email:   fmt.Sprintf("%s@example.com", status),
			Status:  status,
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("Failed to create member: %v", err)
		}
	}

	cycle := cycleByNumber(t, db, group.ID, 1)
	got, err := svc.Activate(context.Background(), group.ID, cycle.ID, group.LeaderID)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if got.Status != models.CycleStatusActive {
		t.Errorf("Status = %s, want active", got.Status)
	}
	if got.StartDate == nil || got.StartedBy == nil || *got.StartedBy != group.LeaderID {
		t.Errorf("Start metadata not recorded: %+v", got)
	}

	var payments []models.Payment
	if err := db.Where("cycle_id = ?", cycle.ID).Find(&payments).Error; err != nil {
		t.Fatalf("Failed to load payments: %v", err)
	}
	if len(payments) != len(members) {
		t.Fatalf("Expected %d payments, got %d", len(members), len(payments))
	}
	for _, p := range payments {
		if p.Status != models.PaymentStatusPending {
			t.Errorf("Payment %d status = %s, want pending", p.ID, p.Status)
		}
		if p.Amount != group.ContributionAmount {
			t.Errorf("Payment %d amount = %v, want %v", p.ID, p.Amount, group.ContributionAmount)
		}
	}

	var fresh models.Group
	if err := db.First(&fresh, group.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.CurrentCycle == nil || *fresh.CurrentCycle != 1 {
		t.Errorf("CurrentCycle = %v, want 1", fresh.CurrentCycle)
	}
}

func TestActivateDoesNotDuplicatePayments(t *testing.T) {
	db := openTestDB(t)
	group, members := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	cycle := cycleByNumber(t, db, group.ID, 1)

	// Simulate a half-finished earlier activation that already created one
	// payment record.
	seeded := models.Payment{
		CycleID:  cycle.ID,
		MemberID: members[0].ID,
		UserID:   members[0].UserID,
		GroupID:  group.ID,
		Amount:   group.ContributionAmount,
		Status:   models.PaymentStatusPending,
	}
	if err := db.Create(&seeded).Error; err != nil {
		t.Fatalf("Failed to seed payment: %v", err)
	}

	if _, err := svc.Activate(context.Background(), group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	var count int64
	if err := db.Model(&models.Payment{}).Where("cycle_id = ?", cycle.ID).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != int64(len(members)) {
		t.Errorf("Payment count = %d, want %d", count, len(members))
	}

	var perMember int64
	if err := db.Model(&models.Payment{}).
		Where("cycle_id = ? AND member_id = ?", cycle.ID, members[0].ID).
		Count(&perMember).Error; err != nil {
		t.Fatal(err)
	}
	if perMember != 1 {
		t.Errorf("Member has %d payments for the cycle, want 1", perMember)
	}
}

func TestActivateRejectsWhileAnotherCycleActive(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)

	first := cycleByNumber(t, db, group.ID, 1)
	if _, err := svc.Activate(context.Background(), group.ID, first.ID, group.LeaderID); err != nil {
		t.Fatalf("Activate cycle 1 failed: %v", err)
	}

	second := cycleByNumber(t, db, group.ID, 2)
	_, err := svc.Activate(context.Background(), group.ID, second.ID, group.LeaderID)
	if !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	want := "Active cycle exists: cycle 1 must be completed or skipped first"
	if errMessage(err) != want {
		t.Errorf("Message = %q, want %q", errMessage(err), want)
	}
}

func TestActivateStatusConflicts(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()
	leaderID := group.LeaderID

	cycle := cycleByNumber(t, db, group.ID, 1)
	if _, err := svc.Activate(ctx, group.ID, cycle.ID, leaderID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	t.Run("already active", func(t *testing.T) {
		_, err := svc.Activate(ctx, group.ID, cycle.ID, leaderID)
		if !apperr.HasCode(err, apperr.CodeConflict) {
			t.Fatalf("Expected conflict, got %v", err)
		}
		if errMessage(err) != "Cycle 1 is already active" {
			t.Errorf("Unexpected message: %q", errMessage(err))
		}
	})

	t.Run("already completed", func(t *testing.T) {
		markAllPaid(t, db, cycle.ID)
		if _, err := svc.Complete(ctx, group.ID, cycle.ID, leaderID); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		_, err := svc.Activate(ctx, group.ID, cycle.ID, leaderID)
		if !apperr.HasCode(err, apperr.CodeConflict) {
			t.Fatalf("Expected conflict, got %v", err)
		}
		if errMessage(err) != "Cycle 1 is already completed" {
			t.Errorf("Unexpected message: %q", errMessage(err))
		}
	})

	t.Run("skipped needs unskip", func(t *testing.T) {
		second := cycleByNumber(t, db, group.ID, 2)
		if _, err := svc.Skip(ctx, group.ID, second.ID, leaderID); err != nil {
			t.Fatalf("Skip failed: %v", err)
		}
		_, err := svc.Activate(ctx, group.ID, second.ID, leaderID)
		if !apperr.HasCode(err, apperr.CodeConflict) {
			t.Fatalf("Expected conflict, got %v", err)
		}
		if errMessage(err) != "Cycle 2 is skipped. Please unskip it first" {
			t.Errorf("Unexpected message: %q", errMessage(err))
		}
	})
}

func TestActivateRequiresLeader(t *testing.T) {
	db := openTestDB(t)
	group, members := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	cycle := cycleByNumber(t, db, group.ID, 1)

	_, err := svc.Activate(context.Background(), group.ID, cycle.ID, *members[1].UserID)
	if !apperr.HasCode(err, apperr.CodeForbidden) {
		t.Fatalf("Expected forbidden, got %v", err)
	}

	// Sub-leaders can verify payments but not transition cycles.
	if err := db.Model(&models.Member{}).Where("id = ?", members[1].ID).
		Update("role", models.MemberRoleSubLeader).Error; err != nil {
		t.Fatal(err)
	}
	_, err = svc.Activate(context.Background(), group.ID, cycle.ID, *members[1].UserID)
	if !apperr.HasCode(err, apperr.CodeForbidden) {
		t.Fatalf("Expected forbidden for sub-leader, got %v", err)
	}
}

func TestConcurrentActivationsLeaveOneActiveCycle(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 4)
	svc := newTestCycleService(db)

	first := cycleByNumber(t, db, group.ID, 1)
	second := cycleByNumber(t, db, group.ID, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uint{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, cycleID uint) {
			defer wg.Done()
			_, errs[i] = svc.Activate(context.Background(), group.ID, cycleID, group.LeaderID)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !apperr.HasCode(err, apperr.CodeConflict) {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("Expected exactly one activation to succeed, got %d", succeeded)
	}

	var active int64
	err := db.Model(&models.PaymentCycle{}).
		Where("group_id = ? AND status = ?", group.ID, models.CycleStatusActive).
		Count(&active).Error
	if err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Fatalf("Active cycle count = %d, want 1", active)
	}
}

func TestCompleteRejectsWithOutstandingPayments(t *testing.T) {
	db := openTestDB(t)
	group, members := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	cycle := cycleByNumber(t, db, group.ID, 1)

	if _, err := svc.Activate(context.Background(), group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	// Pay only the first member; two remain pending.
	err := db.Model(&models.Payment{}).
		Where("cycle_id = ? AND member_id = ?", cycle.ID, members[0].ID).
		Update("status", models.PaymentStatusPaid).Error
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Complete(context.Background(), group.ID, cycle.ID, group.LeaderID)
	if !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if errMessage(err) != "2 members have not paid yet" {
		t.Errorf("Message = %q, want exact pending count", errMessage(err))
	}
}

func TestCompletePaysOutRecipient(t *testing.T) {
	db := openTestDB(t)
	group, members := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()
	cycle := cycleByNumber(t, db, group.ID, 1)

	activated, err := svc.Activate(ctx, group.ID, cycle.ID, group.LeaderID)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if activated.RecipientID == nil || *activated.RecipientID != members[0].ID {
		t.Fatalf("RecipientID = %v, want first unpaid member %d", activated.RecipientID, members[0].ID)
	}

	markAllPaid(t, db, cycle.ID)
	completed, err := svc.Complete(ctx, group.ID, cycle.ID, group.LeaderID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completed.Status != models.CycleStatusCompleted || !completed.IsCompleted {
		t.Errorf("Cycle not completed: %+v", completed)
	}
	if completed.CompletedAt == nil || completed.CompletedBy == nil {
		t.Errorf("Completion metadata missing: %+v", completed)
	}

	var recipient models.Member
	if err := db.First(&recipient, members[0].ID).Error; err != nil {
		t.Fatal(err)
	}
	if !recipient.HasReceived {
		t.Error("Recipient HasReceived = false")
	}
	if recipient.ReceivedCycle == nil || *recipient.ReceivedCycle != 1 {
		t.Errorf("ReceivedCycle = %v, want 1", recipient.ReceivedCycle)
	}
	if recipient.TotalReceived != 300 {
		t.Errorf("TotalReceived = %v, want 300 (100 x 3 contributors)", recipient.TotalReceived)
	}

	var fresh models.Group
	if err := db.First(&fresh, group.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.CurrentCycle != nil {
		t.Errorf("CurrentCycle = %v, want nil after completion", *fresh.CurrentCycle)
	}
}

func TestCompleteStatusConflicts(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()

	t.Run("upcoming is not active", func(t *testing.T) {
		cycle := cycleByNumber(t, db, group.ID, 1)
		_, err := svc.Complete(ctx, group.ID, cycle.ID, group.LeaderID)
		if !apperr.HasCode(err, apperr.CodeConflict) {
			t.Fatalf("Expected conflict, got %v", err)
		}
		if errMessage(err) != "Cycle 1 is not active" {
			t.Errorf("Unexpected message: %q", errMessage(err))
		}
	})

	t.Run("skipped cannot complete", func(t *testing.T) {
		cycle := cycleByNumber(t, db, group.ID, 2)
		if _, err := svc.Skip(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
			t.Fatalf("Skip failed: %v", err)
		}
		_, err := svc.Complete(ctx, group.ID, cycle.ID, group.LeaderID)
		if !apperr.HasCode(err, apperr.CodeConflict) {
			t.Fatalf("Expected conflict, got %v", err)
		}
		if errMessage(err) != "Cycle 2 was skipped and cannot be completed" {
			t.Errorf("Unexpected message: %q", errMessage(err))
		}
	})
}

func TestSkipActiveCycleClearsPointer(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()
	cycle := cycleByNumber(t, db, group.ID, 1)

	if _, err := svc.Activate(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	skipped, err := svc.Skip(ctx, group.ID, cycle.ID, group.LeaderID)
	if err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if skipped.Status != models.CycleStatusSkipped || !skipped.IsSkipped {
		t.Errorf("Cycle not skipped: %+v", skipped)
	}

	var fresh models.Group
	if err := db.First(&fresh, group.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.CurrentCycle != nil {
		t.Errorf("CurrentCycle = %v, want nil", *fresh.CurrentCycle)
	}
}

func TestSkipUpcomingKeepsActivePointer(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()

	first := cycleByNumber(t, db, group.ID, 1)
	if _, err := svc.Activate(ctx, group.ID, first.ID, group.LeaderID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	// Skipping a later upcoming cycle must not detach the active one.
	third := cycleByNumber(t, db, group.ID, 3)
	if _, err := svc.Skip(ctx, group.ID, third.ID, group.LeaderID); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}

	var fresh models.Group
	if err := db.First(&fresh, group.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.CurrentCycle == nil || *fresh.CurrentCycle != 1 {
		t.Errorf("CurrentCycle = %v, want 1", fresh.CurrentCycle)
	}
}

func TestSkipConflicts(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()

	cycle := cycleByNumber(t, db, group.ID, 1)
	if _, err := svc.Activate(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	markAllPaid(t, db, cycle.ID)
	if _, err := svc.Complete(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	_, err := svc.Skip(ctx, group.ID, cycle.ID, group.LeaderID)
	if !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if errMessage(err) != "Cannot skip a completed cycle" {
		t.Errorf("Unexpected message: %q", errMessage(err))
	}

	second := cycleByNumber(t, db, group.ID, 2)
	if _, err := svc.Skip(ctx, group.ID, second.ID, group.LeaderID); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	_, err = svc.Skip(ctx, group.ID, second.ID, group.LeaderID)
	if !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if errMessage(err) != "Cycle 2 is already skipped" {
		t.Errorf("Unexpected message: %q", errMessage(err))
	}
}

func TestUnskipRestoresUpcoming(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()
	cycle := cycleByNumber(t, db, group.ID, 1)

	// Activate first so the cycle has payments and start metadata to shed.
	if _, err := svc.Activate(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if _, err := svc.Skip(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}

	restored, err := svc.Unskip(ctx, group.ID, cycle.ID, group.LeaderID)
	if err != nil {
		t.Fatalf("Unskip failed: %v", err)
	}
	if restored.Status != models.CycleStatusUpcoming || restored.IsSkipped {
		t.Errorf("Cycle not restored: %+v", restored)
	}
	if restored.StartDate != nil || restored.StartedBy != nil || restored.CompletedAt != nil {
		t.Errorf("Transition metadata not cleared: %+v", restored)
	}

	// Payments from the earlier activation survive; re-activation reuses them.
	var payments int64
	if err := db.Model(&models.Payment{}).Where("cycle_id = ?", cycle.ID).Count(&payments).Error; err != nil {
		t.Fatal(err)
	}
	if payments != 3 {
		t.Errorf("Payment count = %d, want 3", payments)
	}
	if _, err := svc.Activate(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
		t.Fatalf("Re-activate failed: %v", err)
	}
	if err := db.Model(&models.Payment{}).Where("cycle_id = ?", cycle.ID).Count(&payments).Error; err != nil {
		t.Fatal(err)
	}
	if payments != 3 {
		t.Errorf("Payment count after re-activation = %d, want 3", payments)
	}
}

func TestUnskipRejectsNonSkipped(t *testing.T) {
	db := openTestDB(t)
	group, _ := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	cycle := cycleByNumber(t, db, group.ID, 1)

	_, err := svc.Unskip(context.Background(), group.ID, cycle.ID, group.LeaderID)
	if !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if errMessage(err) != "Cycle 1 is not skipped" {
		t.Errorf("Unexpected message: %q", errMessage(err))
	}
}

// TestFullRotation runs a 3-member group through all three cycles and checks
// the bookkeeping at the end: every member received the pool exactly once.
func TestFullRotation(t *testing.T) {
	db := openTestDB(t)
	group, members := seedGroup(t, db, 3)
	svc := newTestCycleService(db)
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		cycle := cycleByNumber(t, db, group.ID, n)
		if _, err := svc.Activate(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
			t.Fatalf("Activate cycle %d failed: %v", n, err)
		}
		markAllPaid(t, db, cycle.ID)
		if _, err := svc.Complete(ctx, group.ID, cycle.ID, group.LeaderID); err != nil {
			t.Fatalf("Complete cycle %d failed: %v", n, err)
		}
	}

	for i, m := range members {
		var fresh models.Member
		if err := db.First(&fresh, m.ID).Error; err != nil {
			t.Fatal(err)
		}
		if !fresh.HasReceived {
			t.Errorf("Member %d never received the pool", i+1)
		}
		if fresh.TotalReceived != 300 {
			t.Errorf("Member %d TotalReceived = %v, want 300", i+1, fresh.TotalReceived)
		}
		if fresh.ReceivedCycle == nil || *fresh.ReceivedCycle != i+1 {
			t.Errorf("Member %d ReceivedCycle = %v, want %d", i+1, fresh.ReceivedCycle, i+1)
		}
	}

	var fresh models.Group
	if err := db.First(&fresh, group.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.CurrentCycle != nil {
		t.Errorf("CurrentCycle = %v, want nil after the last cycle", *fresh.CurrentCycle)
	}
}
