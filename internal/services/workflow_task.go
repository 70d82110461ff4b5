package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/uppalcrm/uppalcrm/internal/models"
)

// Priority thresholds for auto-resolved task priority, in days remaining
// until renewal.
const (
	priorityHighDays   = 7
	priorityMediumDays = 14
)

// assigneeResolver returns the user to assign a task to, or zero when the
// strategy yields nothing and the next resolver in the chain should apply.
type assigneeResolver func(cfg ActionConfig, record CandidateRecord, triggeredBy *uint) uint

// resolvePriority maps a rule's priority setting and the record's urgency
// to a task priority. Empty or "auto" derives from days remaining.
func resolvePriority(configured string, daysRemaining int) string {
	if configured != "" && configured != "auto" {
		return configured
	}
	switch {
	case daysRemaining <= priorityHighDays:
		return "high"
	case daysRemaining <= priorityMediumDays:
		return "medium"
	default:
		return "low"
	}
}

// resolveAssignee walks the strategy chain and returns the first user it
// resolves. The account owner is the terminal fallback so a task always
// lands with someone.
func resolveAssignee(cfg ActionConfig, record CandidateRecord, triggeredBy *uint) uint {
	chain := []assigneeResolver{
		resolveByStrategy,
		func(_ ActionConfig, _ CandidateRecord, tb *uint) uint {
			if tb != nil {
				return *tb
			}
			return 0
		},
		func(_ ActionConfig, rec CandidateRecord, _ *uint) uint {
			return rec.AssignedTo
		},
	}
	for _, resolver := range chain {
		if id := resolver(cfg, record, triggeredBy); id != 0 {
			return id
		}
	}
	return 0
}

func resolveByStrategy(cfg ActionConfig, record CandidateRecord, triggeredBy *uint) uint {
	switch cfg.AssigneeStrategy {
	case "account_owner":
		return record.AssignedTo
	case "specific_user":
		return cfg.AssigneeUserID
	case "triggering_user":
		if triggeredBy != nil {
			return *triggeredBy
		}
	}
	// Unset or unknown strategy: defer to the chain, which prefers the
	// invoking user and falls back to the account owner.
	return 0
}

// buildTemplateData assembles the substitution variables available to
// subject and description templates.
func buildTemplateData(record CandidateRecord, daysRemaining int) map[string]string {
	contactName := strings.TrimSpace(strings.TrimSpace(record.FirstName) + " " + strings.TrimSpace(record.LastName))
	data := map[string]string{
		"account_name":       record.AccountName,
		"contact_name":       contactName,
		"contact_first_name": record.FirstName,
		"contact_last_name":  record.LastName,
		"contact_phone":      record.Phone,
		"contact_email":      record.Email,
		"renewal_date":       FormatDate(record.NextRenewalDate),
		"days_remaining":     strconv.Itoa(daysRemaining),
	}
	return data
}

// materializeTask turns a matched record into a persisted task and reports
// what was created.
func (s *WorkflowService) materializeTask(ctx context.Context, rule *models.WorkflowRule, cfg ActionConfig, record CandidateRecord, loc *time.Location, triggeredBy *uint, now time.Time) (*ExecutionDetail, error) {
	daysRemaining := DaysUntil(record.NextRenewalDate, now, loc)

	data := buildTemplateData(record, daysRemaining)

	subject := RenderTemplate(cfg.SubjectTemplate, data)
	if subject == "" {
		subject = "Renewal follow-up: " + record.AccountName
	}
	description := RenderTemplate(cfg.DescriptionTemplate, data)

	priority := resolvePriority(cfg.Priority, daysRemaining)
	assignee := resolveAssignee(cfg, record, triggeredBy)

	// Due date pulls ahead of the renewal, but never into the past.
	scheduledAt := now
	if !record.NextRenewalDate.IsZero() {
		due := record.NextRenewalDate.AddDate(0, 0, -cfg.DaysBeforeDue)
		if due.After(now) {
			scheduledAt = due
		}
	}

	metadata, _ := json.Marshal(map[string]any{
		"rule_id":      rule.ID,
		"trigger_type": rule.TriggerType,
		"entity_type":  rule.EntityType,
	})

	task := &models.Interaction{
		OrganizationID:   rule.OrganizationID,
		ContactID:        record.ContactID,
		AccountID:        record.AccountID,
		InteractionType:  "task",
		Subject:          subject,
		Description:      description,
		Priority:         priority,
		Status:           "pending",
		ScheduledAt:      &scheduledAt,
		UserID:           assignee,
		ActivityMetadata: string(metadata),
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}

	detail := &ExecutionDetail{
		AccountID:     record.AccountID,
		AccountName:   record.AccountName,
		ContactID:     record.ContactID,
		ContactName:   data["contact_name"],
		TaskID:        task.ID,
		TaskSubject:   subject,
		Priority:      priority,
		ScheduledAt:   scheduledAt.Format(time.RFC3339),
		AssignedTo:    assignee,
		DaysRemaining: daysRemaining,
	}
	return detail, nil
}
