package models

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"gorm.io/gorm"
)

// GroupStatus represents the lifecycle status of a group
type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusCompleted GroupStatus = "completed"
	GroupStatusCancelled GroupStatus = "cancelled"
)

// Frequency is the contribution cadence of a group
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Group represents a rotating savings group (arisan). Each group runs for
// Duration cycles; every cycle all members contribute ContributionAmount and
// one member receives the pooled sum.
type Group struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name               string      `gorm:"type:varchar(255)" json:"name"`
	Description        string      `gorm:"type:text" json:"description"`
	ContributionAmount float64     `gorm:"type:decimal(15,2)" json:"contribution_amount"`
	Frequency          Frequency   `gorm:"type:varchar(20);default:'monthly'" json:"frequency"`
	Duration           int         `json:"duration"` // planned number of cycles
	LeaderID           uint        `gorm:"index" json:"leader_id"`
	CurrentCycle       *int        `json:"current_cycle"` // cycle number of the active cycle, nil when none
	Status             GroupStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	InviteCode         string      `gorm:"type:varchar(64);uniqueIndex" json:"invite_code"`
	StartDate          time.Time   `json:"start_date"`

	// Relationships
	Leader  User           `gorm:"foreignKey:LeaderID" json:"leader,omitempty"`
	Members []Member       `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Cycles  []PaymentCycle `gorm:"foreignKey:GroupID" json:"cycles,omitempty"`
}

// ScheduleRule builds the RFC 5545 recurrence rule for the group's
// contribution cadence, starting at StartDate with one occurrence per cycle.
func (g Group) ScheduleRule() (*rrule.RRule, error) {
	var freq rrule.Frequency
	switch g.Frequency {
	case FrequencyDaily:
		freq = rrule.DAILY
	case FrequencyWeekly:
		freq = rrule.WEEKLY
	case FrequencyMonthly:
		freq = rrule.MONTHLY
	default:
		return nil, fmt.Errorf("unsupported frequency %q", g.Frequency)
	}

	return rrule.NewRRule(rrule.ROption{
		Freq:    freq,
		Count:   g.Duration,
		Dtstart: g.StartDate,
	})
}

// CycleDueDates returns one due date per planned cycle, in order.
func (g Group) CycleDueDates() ([]time.Time, error) {
	rule, err := g.ScheduleRule()
	if err != nil {
		return nil, err
	}
	dates := rule.All()
	if len(dates) != g.Duration {
		return nil, fmt.Errorf("schedule produced %d dates for %d cycles", len(dates), g.Duration)
	}
	return dates, nil
}
