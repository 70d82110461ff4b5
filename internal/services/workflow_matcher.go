package services

import (
	"context"
	"time"

	"github.com/uppalcrm/uppalcrm/internal/models"

	"gorm.io/gorm"
)

// TriggerKey identifies a matcher by the (entity type, trigger type) pair a
// rule declares. Unregistered pairs yield zero matches, not an error.
type TriggerKey struct {
	EntityType  string
	TriggerType string
}

// CandidateRecord is one entity matched by a trigger, denormalized so the
// task materializer needs no further queries.
type CandidateRecord struct {
	AccountID       uint      `json:"account_id"`
	AccountName     string    `json:"account_name"`
	NextRenewalDate time.Time `json:"next_renewal_date"`
	ContactID       uint      `json:"contact_id"`
	AssignedTo      uint      `json:"assigned_to"` // account owner (created_by)
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
}

// MatchResult carries the structural match count ("evaluated") and the
// subset that survived duplicate prevention ("matched").
type MatchResult struct {
	Evaluated int
	Records   []CandidateRecord
}

// TriggerMatcher finds the current candidates for one trigger type.
type TriggerMatcher interface {
	Match(ctx context.Context, db *gorm.DB, rule *models.WorkflowRule, cond TriggerConditions, now time.Time, loc *time.Location) (*MatchResult, error)
}

// renewalWithinDaysMatcher matches accounts whose next_renewal_date falls
// within [today, today+N] inclusive, where "today" is the organization's
// local calendar date.
type renewalWithinDaysMatcher struct{}

// openTaskExists excludes accounts that already carry a task in any status
// other than completed/cancelled. The check is deliberately rule-agnostic:
// any pending task blocks re-triggering, so two similar rules cannot
// double-remind the same customer.
const openTaskExists = `NOT EXISTS (
	SELECT 1 FROM interactions i
	WHERE i.account_id = a.id
	  AND i.organization_id = a.organization_id
	  AND i.interaction_type = 'task'
	  AND i.status NOT IN ('completed', 'cancelled')
)`

func (renewalWithinDaysMatcher) Match(ctx context.Context, db *gorm.DB, rule *models.WorkflowRule, cond TriggerConditions, now time.Time, loc *time.Location) (*MatchResult, error) {
	days := cond.Days
	if days <= 0 {
		days = defaultRenewalWindowDays
	}

	// The window is anchored to the org's local calendar date, computed in
	// Go rather than with SQL CURRENT_DATE so the database server's zone
	// never shifts the boundary.
	windowStart := LocalDate(now, loc)
	windowEnd := windowStart.AddDate(0, 0, days+1) // exclusive upper bound

	base := func() *gorm.DB {
		return db.WithContext(ctx).
			Table("accounts a").
			Joins("JOIN contacts c ON c.id = a.contact_id").
			Where("a.organization_id = ?", rule.OrganizationID).
			Where("a.deleted_at IS NULL AND c.deleted_at IS NULL").
			Where("a.next_renewal_date IS NOT NULL").
			Where("a.next_renewal_date >= ? AND a.next_renewal_date < ?", windowStart, windowEnd)
	}

	var evaluated int64
	if err := base().Count(&evaluated).Error; err != nil {
		return nil, err
	}

	q := base().
		Select(`a.id AS account_id, a.account_name, a.next_renewal_date,
			a.contact_id, a.created_by AS assigned_to,
			c.first_name, c.last_name, c.phone, c.email`).
		Order("a.next_renewal_date ASC, a.id ASC")
	if rule.PreventDuplicates {
		q = q.Where(openTaskExists)
	}

	var records []CandidateRecord
	if err := q.Scan(&records).Error; err != nil {
		return nil, err
	}

	return &MatchResult{Evaluated: int(evaluated), Records: records}, nil
}
