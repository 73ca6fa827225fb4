package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// CycleService orchestrates the payment-cycle state machine:
// upcoming -> active -> completed, with skip/unskip branching off.
// Every transition runs under a per-group advisory lock and inside a single
// transaction, so at most one cycle per group is ever active.
type CycleService struct {
	db       *gorm.DB
	locks    GroupLocker
	policy   *Policy
	notifier *Notifier
}

func NewCycleService(db *gorm.DB, locks GroupLocker, policy *Policy, notifier *Notifier) *CycleService {
	return &CycleService{db: db, locks: locks, policy: policy, notifier: notifier}
}

// GenerateCycles creates the upcoming cycle rows for a group's full planned
// duration, one per occurrence of the group's contribution schedule. Called
// inside the group-creation transaction.
func (s *CycleService) GenerateCycles(tx *gorm.DB, group *models.Group) error {
	dates, err := group.CycleDueDates()
	if err != nil {
		return fmt.Errorf("failed to build cycle schedule: %w", err)
	}

	cycles := make([]models.PaymentCycle, 0, len(dates))
	for i, due := range dates {
		cycles = append(cycles, models.PaymentCycle{
			GroupID:     group.ID,
			CycleNumber: i + 1,
			Status:      models.CycleStatusUpcoming,
			Amount:      group.ContributionAmount,
			DueDate:     due,
		})
	}
	return tx.Create(&cycles).Error
}

// Activate transitions an upcoming cycle to active. Payment records are
// created for every eligible member that does not have one yet, so retrying
// an activation never duplicates them.
func (s *CycleService) Activate(ctx context.Context, groupID, cycleID, actorID uint) (*models.PaymentCycle, error) {
	release, err := s.locks.AcquireGroupLock(ctx, groupID)
	if err != nil {
		CycleTransitions.WithLabelValues("activate", "error").Inc()
		return nil, err
	}
	defer release()

	var cycle models.PaymentCycle
	var group models.Group
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, c, err := s.loadGroupCycle(tx, groupID, cycleID)
		if err != nil {
			return err
		}
		if err := s.authorizeTransition(ctx, actorID, g, "start"); err != nil {
			return err
		}

		switch c.Status {
		case models.CycleStatusActive:
			return apperr.Conflict("Cycle %d is already active", c.CycleNumber)
		case models.CycleStatusCompleted:
			return apperr.Conflict("Cycle %d is already completed", c.CycleNumber)
		case models.CycleStatusSkipped:
			return apperr.Conflict("Cycle %d is skipped. Please unskip it first", c.CycleNumber)
		}

		var other models.PaymentCycle
		err = tx.Where("group_id = ? AND status = ? AND id <> ?", groupID, models.CycleStatusActive, c.ID).
			First(&other).Error
		if err == nil {
			return apperr.Conflict("Active cycle exists: cycle %d must be completed or skipped first", other.CycleNumber)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		c.Status = models.CycleStatusActive
		c.IsCompleted = false
		c.IsSkipped = false
		c.StartDate = &now
		c.StartedBy = &actorID
		c.CompletedAt = nil
		c.CompletedBy = nil

		// Recipient rotation: the first member of the rotation order that has
		// not yet received a pool gets this cycle, unless one was designated.
		if c.RecipientID == nil {
			var recipient models.Member
			err := tx.Where("group_id = ? AND status IN ? AND has_received = ?",
				groupID, []models.MemberStatus{models.MemberStatusActive, models.MemberStatusPending}, false).
				Order("id").First(&recipient).Error
			if err == nil {
				c.RecipientID = &recipient.ID
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := tx.Save(c).Error; err != nil {
			return err
		}

		if err := s.createMissingPayments(tx, g, c); err != nil {
			return err
		}

		if err := tx.Model(&models.Group{}).Where("id = ?", groupID).
			Update("current_cycle", c.CycleNumber).Error; err != nil {
			return err
		}

		group = *g
		cycle = *c
		return nil
	})
	if err != nil {
		CycleTransitions.WithLabelValues("activate", "rejected").Inc()
		return nil, err
	}
	CycleTransitions.WithLabelValues("activate", "ok").Inc()

	LogActivity(ctx, s.db, groupID, actorID, "cycle_started",
		fmt.Sprintf("Cycle %d started", cycle.CycleNumber),
		map[string]interface{}{"cycle_id": cycle.ID, "cycle_number": cycle.CycleNumber})

	if s.notifier != nil {
		_ = s.notifier.NotifyGroupMembers(ctx, groupID, NotificationInput{
			Type:    "cycle_started",
			Title:   fmt.Sprintf("Cycle %d started", cycle.CycleNumber),
			Message: fmt.Sprintf("Cycle %d of %s is now active. Your contribution of %.2f is due by %s.", cycle.CycleNumber, group.Name, cycle.Amount, cycle.DueDate.Format("2 Jan 2006")),
			Data:    map[string]interface{}{"cycle_id": cycle.ID},
		})
	}

	return &cycle, nil
}

// Complete transitions an active cycle to completed. Rejected while any
// payment is still outstanding; on success the recipient's financial snapshot
// is updated with the pooled amount and the group's current-cycle pointer is
// cleared.
func (s *CycleService) Complete(ctx context.Context, groupID, cycleID, actorID uint) (*models.PaymentCycle, error) {
	release, err := s.locks.AcquireGroupLock(ctx, groupID)
	if err != nil {
		CycleTransitions.WithLabelValues("complete", "error").Inc()
		return nil, err
	}
	defer release()

	var cycle models.PaymentCycle
	var group models.Group
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, c, err := s.loadGroupCycle(tx, groupID, cycleID)
		if err != nil {
			return err
		}
		if err := s.authorizeTransition(ctx, actorID, g, "complete"); err != nil {
			return err
		}

		switch c.Status {
		case models.CycleStatusSkipped:
			return apperr.Conflict("Cycle %d was skipped and cannot be completed", c.CycleNumber)
		case models.CycleStatusCompleted:
			return apperr.Conflict("Cycle %d is already completed", c.CycleNumber)
		case models.CycleStatusUpcoming:
			return apperr.Conflict("Cycle %d is not active", c.CycleNumber)
		}

		var unpaid int64
		if err := tx.Model(&models.Payment{}).
			Where("cycle_id = ? AND status <> ?", c.ID, models.PaymentStatusPaid).
			Count(&unpaid).Error; err != nil {
			return err
		}
		if unpaid > 0 {
			return apperr.Conflict("%d members have not paid yet", unpaid)
		}

		if c.RecipientID == nil {
			return apperr.Conflict("Cycle %d has no designated recipient", c.CycleNumber)
		}
		var recipient models.Member
		if err := tx.First(&recipient, *c.RecipientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Recipient member not found")
			}
			return err
		}

		var contributors int64
		if err := tx.Model(&models.Payment{}).Where("cycle_id = ?", c.ID).
			Count(&contributors).Error; err != nil {
			return err
		}

		now := time.Now()
		c.Status = models.CycleStatusCompleted
		c.IsCompleted = true
		c.CompletedAt = &now
		c.CompletedBy = &actorID
		if err := tx.Save(c).Error; err != nil {
			return err
		}

		pool := g.ContributionAmount * float64(contributors)
		recipient.HasReceived = true
		recipient.ReceivedCycle = &c.CycleNumber
		recipient.ReceivedAt = &now
		recipient.TotalReceived += pool
		if err := tx.Save(&recipient).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Group{}).Where("id = ?", groupID).
			Update("current_cycle", nil).Error; err != nil {
			return err
		}

		group = *g
		cycle = *c
		return nil
	})
	if err != nil {
		CycleTransitions.WithLabelValues("complete", "rejected").Inc()
		return nil, err
	}
	CycleTransitions.WithLabelValues("complete", "ok").Inc()

	LogActivity(ctx, s.db, groupID, actorID, "cycle_completed",
		fmt.Sprintf("Cycle %d completed", cycle.CycleNumber),
		map[string]interface{}{"cycle_id": cycle.ID, "cycle_number": cycle.CycleNumber})

	if s.notifier != nil {
		_ = s.notifier.NotifyGroupMembers(ctx, groupID, NotificationInput{
			Type:    "cycle_completed",
			Title:   fmt.Sprintf("Cycle %d completed", cycle.CycleNumber),
			Message: fmt.Sprintf("Cycle %d of %s has been completed and the pool was paid out.", cycle.CycleNumber, group.Name),
			Data:    map[string]interface{}{"cycle_id": cycle.ID},
		})
	}

	return &cycle, nil
}

// Skip marks an active or upcoming cycle as skipped. No payment or member
// financial state is touched.
func (s *CycleService) Skip(ctx context.Context, groupID, cycleID, actorID uint) (*models.PaymentCycle, error) {
	release, err := s.locks.AcquireGroupLock(ctx, groupID)
	if err != nil {
		CycleTransitions.WithLabelValues("skip", "error").Inc()
		return nil, err
	}
	defer release()

	var cycle models.PaymentCycle
	var group models.Group
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, c, err := s.loadGroupCycle(tx, groupID, cycleID)
		if err != nil {
			return err
		}
		if err := s.authorizeTransition(ctx, actorID, g, "skip"); err != nil {
			return err
		}

		switch c.Status {
		case models.CycleStatusCompleted:
			return apperr.Conflict("Cannot skip a completed cycle")
		case models.CycleStatusSkipped:
			return apperr.Conflict("Cycle %d is already skipped", c.CycleNumber)
		}

		now := time.Now()
		c.Status = models.CycleStatusSkipped
		c.IsSkipped = true
		c.IsCompleted = false
		c.CompletedAt = &now
		c.CompletedBy = &actorID
		if err := tx.Save(c).Error; err != nil {
			return err
		}

		// The pointer only moves when it points at this cycle; skipping an
		// upcoming cycle must not detach a different active one.
		if g.CurrentCycle != nil && *g.CurrentCycle == c.CycleNumber {
			if err := tx.Model(&models.Group{}).Where("id = ?", groupID).
				Update("current_cycle", nil).Error; err != nil {
				return err
			}
		}

		group = *g
		cycle = *c
		return nil
	})
	if err != nil {
		CycleTransitions.WithLabelValues("skip", "rejected").Inc()
		return nil, err
	}
	CycleTransitions.WithLabelValues("skip", "ok").Inc()

	LogActivity(ctx, s.db, groupID, actorID, "cycle_skipped",
		fmt.Sprintf("Cycle %d skipped", cycle.CycleNumber),
		map[string]interface{}{"cycle_id": cycle.ID, "cycle_number": cycle.CycleNumber})

	if s.notifier != nil {
		_ = s.notifier.NotifyGroupMembers(ctx, groupID, NotificationInput{
			Type:    "cycle_skipped",
			Title:   fmt.Sprintf("Cycle %d skipped", cycle.CycleNumber),
			Message: fmt.Sprintf("Cycle %d of %s was skipped by the group leader.", cycle.CycleNumber, group.Name),
			Data:    map[string]interface{}{"cycle_id": cycle.ID},
		})
	}

	return &cycle, nil
}

// Unskip returns a skipped cycle to upcoming so it can be activated again.
// Existing payment records from a previous activation are kept; activation
// only fills in the missing ones.
func (s *CycleService) Unskip(ctx context.Context, groupID, cycleID, actorID uint) (*models.PaymentCycle, error) {
	release, err := s.locks.AcquireGroupLock(ctx, groupID)
	if err != nil {
		CycleTransitions.WithLabelValues("unskip", "error").Inc()
		return nil, err
	}
	defer release()

	var cycle models.PaymentCycle
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, c, err := s.loadGroupCycle(tx, groupID, cycleID)
		if err != nil {
			return err
		}
		if err := s.authorizeTransition(ctx, actorID, g, "unskip"); err != nil {
			return err
		}

		if c.Status != models.CycleStatusSkipped {
			return apperr.Conflict("Cycle %d is not skipped", c.CycleNumber)
		}

		c.Status = models.CycleStatusUpcoming
		c.IsSkipped = false
		c.IsCompleted = false
		c.StartDate = nil
		c.StartedBy = nil
		c.CompletedAt = nil
		c.CompletedBy = nil
		if err := tx.Save(c).Error; err != nil {
			return err
		}

		cycle = *c
		return nil
	})
	if err != nil {
		CycleTransitions.WithLabelValues("unskip", "rejected").Inc()
		return nil, err
	}
	CycleTransitions.WithLabelValues("unskip", "ok").Inc()

	LogActivity(ctx, s.db, groupID, actorID, "cycle_unskipped",
		fmt.Sprintf("Cycle %d restored to upcoming", cycle.CycleNumber),
		map[string]interface{}{"cycle_id": cycle.ID, "cycle_number": cycle.CycleNumber})

	return &cycle, nil
}

func (s *CycleService) loadGroupCycle(tx *gorm.DB, groupID, cycleID uint) (*models.Group, *models.PaymentCycle, error) {
	var group models.Group
	if err := tx.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("Group not found")
		}
		return nil, nil, err
	}

	var cycle models.PaymentCycle
	if err := tx.Where("id = ? AND group_id = ?", cycleID, groupID).First(&cycle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("Cycle not found")
		}
		return nil, nil, err
	}

	return &group, &cycle, nil
}

func (s *CycleService) authorizeTransition(ctx context.Context, actorID uint, group *models.Group, verb string) error {
	ok, err := s.policy.Can(ctx, actorID, ActionTransitionCycle, group)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("Only the group leader can %s a cycle", verb)
	}
	return nil
}

// createMissingPayments creates one pending payment per eligible member that
// has none for this cycle yet. The composite unique index on
// (cycle_id, member_id) backstops the read-then-write against races.
func (s *CycleService) createMissingPayments(tx *gorm.DB, group *models.Group, cycle *models.PaymentCycle) error {
	var existingMemberIDs []uint
	if err := tx.Model(&models.Payment{}).Where("cycle_id = ?", cycle.ID).
		Pluck("member_id", &existingMemberIDs).Error; err != nil {
		return err
	}
	existing := make(map[uint]bool, len(existingMemberIDs))
	for _, id := range existingMemberIDs {
		existing[id] = true
	}

	var members []models.Member
	if err := tx.Where("group_id = ? AND status IN ?", group.ID,
		[]models.MemberStatus{models.MemberStatusActive, models.MemberStatusPending}).
		Find(&members).Error; err != nil {
		return err
	}

	var payments []models.Payment
	for _, m := range members {
		if existing[m.ID] {
			continue
		}
		payments = append(payments, models.Payment{
			CycleID:  cycle.ID,
			MemberID: m.ID,
			UserID:   m.UserID,
			GroupID:  group.ID,
			Amount:   group.ContributionAmount,
			Status:   models.PaymentStatusPending,
		})
	}
	if len(payments) == 0 {
		return nil
	}
	return tx.Create(&payments).Error
}
