package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uppalcrm/uppalcrm/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Rules with no explicit window match renewals within the next two weeks.
const defaultRenewalWindowDays = 14

// Execution and sweep statuses.
const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusError          = "error"
	StatusSkipped        = "skipped"
	StatusNoRules        = "no_rules"
)

// TriggerConditions is the structured form of WorkflowRule.TriggerConditions.
type TriggerConditions struct {
	Days int `json:"days"`
}

// ActionConfig is the structured form of WorkflowRule.ActionConfig for the
// create_task action.
type ActionConfig struct {
	SubjectTemplate     string `json:"subject_template"`
	DescriptionTemplate string `json:"description_template"`
	Priority            string `json:"priority"`         // "auto" or low/medium/high
	DaysBeforeDue       int    `json:"days_before_due"`
	AssigneeStrategy    string `json:"assignee_strategy"` // account_owner, specific_user, triggering_user
	AssigneeUserID      uint   `json:"assignee_user_id"`
}

// RuleDetails echoes the rule identity back in execution summaries.
type RuleDetails struct {
	Name        string `json:"name"`
	EntityType  string `json:"entityType"`
	TriggerType string `json:"triggerType"`
	ActionType  string `json:"actionType"`
}

// ExecutionDetail is one per-record outcome inside a summary: either a
// created task or a failed attempt.
type ExecutionDetail struct {
	AccountID     uint   `json:"account_id"`
	AccountName   string `json:"account_name,omitempty"`
	ContactID     uint   `json:"contact_id,omitempty"`
	ContactName   string `json:"contact_name,omitempty"`
	TaskID        uint   `json:"task_id,omitempty"`
	TaskSubject   string `json:"task_subject,omitempty"`
	Priority      string `json:"priority,omitempty"`
	ScheduledAt   string `json:"scheduled_at,omitempty"`
	AssignedTo    uint   `json:"assigned_to,omitempty"`
	DaysRemaining int    `json:"days_remaining"`
	Error         string `json:"error,omitempty"`
	Status        string `json:"status,omitempty"` // "failed" on error entries
}

// RuleExecutionSummary is the structured result of one rule execution,
// returned to callers and persisted (as counts + details) in the audit log.
type RuleExecutionSummary struct {
	RuleID                  uint              `json:"ruleId"`
	OrganizationID          uint              `json:"organizationId"`
	ExecutionID             string            `json:"executionId"`
	RuleDetails             *RuleDetails      `json:"ruleDetails"`
	RecordsEvaluated        int               `json:"recordsEvaluated"`
	RecordsMatched          int               `json:"recordsMatched"`
	TasksCreated            int               `json:"tasksCreated"`
	RecordsSkippedDuplicate int               `json:"recordsSkippedDuplicate"`
	Status                  string            `json:"status"`
	ErrorMessage            string            `json:"errorMessage,omitempty"`
	Details                 []ExecutionDetail `json:"details"`
	ExecutionTimeMs         int64             `json:"executionTimeMs"`
}

// RuleOutcome is the per-rule entry of a combined sweep summary.
type RuleOutcome struct {
	RuleID         uint   `json:"ruleId"`
	RuleName       string `json:"ruleName"`
	Status         string `json:"status"`
	TasksCreated   int    `json:"tasksCreated"`
	RecordsMatched int    `json:"recordsMatched"`
	Error          string `json:"error,omitempty"`
}

// CombinedSummary aggregates all rule executions for one organization.
type CombinedSummary struct {
	OrganizationID        uint          `json:"organizationId"`
	TriggerSource         string        `json:"triggerSource"`
	RulesExecuted         int           `json:"rulesExecuted"`
	TotalRecordsEvaluated int           `json:"totalRecordsEvaluated"`
	TotalRecordsMatched   int           `json:"totalRecordsMatched"`
	TotalTasksCreated     int           `json:"totalTasksCreated"`
	TotalRecordsSkipped   int           `json:"totalRecordsSkipped"`
	ExecutionsByRule      []RuleOutcome `json:"executionsByRule"`
	OverallStatus         string        `json:"overallStatus"`
	ExecutionTimeMs       int64         `json:"executionTimeMs"`
}

// WorkflowService evaluates workflow rules and materializes follow-up tasks.
// Entry points never return engine-internal failures as errors; every
// outcome, including a broken one, comes back as a structured summary.
type WorkflowService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	tracer    trace.Tracer
	defaultTZ string
	matchers  map[TriggerKey]TriggerMatcher
	now       func() time.Time
}

func NewWorkflowService(db *gorm.DB, logger *logrus.Logger, defaultTZ string) *WorkflowService {
	if logger == nil {
		logger = logrus.New()
	}
	if defaultTZ == "" {
		defaultTZ = "America/New_York"
	}
	s := &WorkflowService{
		db:        db,
		logger:    logger,
		tracer:    otel.Tracer("uppalcrm.workflow"),
		defaultTZ: defaultTZ,
		matchers:  make(map[TriggerKey]TriggerMatcher),
		now:       time.Now,
	}
	s.RegisterMatcher(TriggerKey{EntityType: "account", TriggerType: "renewal_within_days"}, renewalWithinDaysMatcher{})
	return s
}

// RegisterMatcher adds a trigger implementation. New trigger types are an
// additive registration, not a new branch in the executor.
func (s *WorkflowService) RegisterMatcher(key TriggerKey, m TriggerMatcher) {
	s.matchers[key] = m
}

// ExecuteRule runs a single rule for an organization. triggeredBy is the
// invoking user, nil when invoked from the scheduler.
func (s *WorkflowService) ExecuteRule(ctx context.Context, ruleID, organizationID uint, triggeredBy *uint) *RuleExecutionSummary {
	return s.executeRule(ctx, ruleID, organizationID, triggeredBy, "manual")
}

func (s *WorkflowService) executeRule(ctx context.Context, ruleID, organizationID uint, triggeredBy *uint, source string) *RuleExecutionSummary {
	ctx, span := s.tracer.Start(ctx, "workflow.execute_rule")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("workflow.rule_id", int64(ruleID)),
		attribute.Int64("workflow.organization_id", int64(organizationID)),
		attribute.String("workflow.trigger_source", source),
	)

	start := s.now()
	summary := &RuleExecutionSummary{
		RuleID:         ruleID,
		OrganizationID: organizationID,
		ExecutionID:    uuid.NewString(),
		Status:         StatusSuccess,
		Details:        []ExecutionDetail{},
	}
	finish := func() *RuleExecutionSummary {
		summary.ExecutionTimeMs = s.now().Sub(start).Milliseconds()
		return summary
	}

	var rule models.WorkflowRule
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", ruleID, organizationID).
		First(&rule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			summary.Status = StatusError
			summary.ErrorMessage = fmt.Sprintf("rule not found: %d", ruleID)
			return finish()
		}
		span.RecordError(err)
		s.logger.Errorf("workflow: load rule %d failed: %v", ruleID, err)
		summary.Status = StatusError
		summary.ErrorMessage = err.Error()
		return finish()
	}

	summary.RuleDetails = &RuleDetails{
		Name:        rule.Name,
		EntityType:  rule.EntityType,
		TriggerType: rule.TriggerType,
		ActionType:  rule.ActionType,
	}

	if !rule.IsEnabled {
		summary.Status = StatusSkipped
		summary.ErrorMessage = fmt.Sprintf("rule is disabled: %s", rule.Name)
		return finish()
	}

	loc := s.organizationLocation(ctx, organizationID)
	now := s.now()

	cond, cfg, ok := s.parseRuleConfig(&rule)
	matcher := s.matchers[TriggerKey{EntityType: rule.EntityType, TriggerType: rule.TriggerType}]

	var result *MatchResult
	if ok && matcher != nil {
		var err error
		result, err = matcher.Match(ctx, s.db, &rule, cond, now, loc)
		if err != nil {
			span.RecordError(err)
			s.logger.Errorf("workflow: match rule %d failed: %v", rule.ID, err)
			summary.Status = StatusError
			summary.ErrorMessage = err.Error()
			s.logExecution(ctx, &rule, summary, triggeredBy, source, start)
			return finish()
		}
	} else {
		// Unrecognized trigger/action combination or unparsable config:
		// zero matches, not an error.
		result = &MatchResult{}
	}

	summary.RecordsEvaluated = result.Evaluated
	summary.RecordsMatched = len(result.Records)
	if rule.PreventDuplicates {
		summary.RecordsSkippedDuplicate = result.Evaluated - len(result.Records)
	}

	for _, record := range result.Records {
		detail, err := s.materializeTask(ctx, &rule, cfg, record, loc, triggeredBy, now)
		if err != nil {
			// One failing insert must not block the remaining records.
			s.logger.Errorf("workflow: create task for account %d failed: %v", record.AccountID, err)
			summary.Status = StatusPartialFailure
			summary.Details = append(summary.Details, ExecutionDetail{
				AccountID: record.AccountID,
				Error:     err.Error(),
				Status:    "failed",
			})
			continue
		}
		summary.TasksCreated++
		summary.Details = append(summary.Details, *detail)
	}

	s.logExecution(ctx, &rule, summary, triggeredBy, source, start)

	span.SetAttributes(
		attribute.Int("workflow.records_evaluated", summary.RecordsEvaluated),
		attribute.Int("workflow.tasks_created", summary.TasksCreated),
		attribute.String("workflow.status", summary.Status),
	)
	return finish()
}

// ExecuteAllRules runs every enabled rule for an organization in sort
// order. Order matters: tasks created by earlier rules feed the duplicate
// checks of later ones within the same run.
func (s *WorkflowService) ExecuteAllRules(ctx context.Context, organizationID uint, triggeredBy *uint, source string) *CombinedSummary {
	ctx, span := s.tracer.Start(ctx, "workflow.execute_all_rules")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("workflow.organization_id", int64(organizationID)),
		attribute.String("workflow.trigger_source", source),
	)

	start := s.now()
	if source == "" {
		source = "manual"
	}
	combined := &CombinedSummary{
		OrganizationID:   organizationID,
		TriggerSource:    source,
		ExecutionsByRule: []RuleOutcome{},
		OverallStatus:    StatusSuccess,
	}
	finish := func() *CombinedSummary {
		combined.ExecutionTimeMs = s.now().Sub(start).Milliseconds()
		return combined
	}

	query := s.db.WithContext(ctx).
		Where("organization_id = ? AND is_enabled = ?", organizationID, true)
	if source == "cron" {
		query = query.Where("run_mode <> ?", "manual_only")
	}

	var rules []models.WorkflowRule
	if err := query.
		Order("sort_order ASC, created_at ASC").
		Find(&rules).Error; err != nil {
		span.RecordError(err)
		s.logger.Errorf("workflow: load rules for org %d failed: %v", organizationID, err)
		combined.OverallStatus = StatusError
		return finish()
	}

	if len(rules) == 0 {
		combined.OverallStatus = StatusNoRules
		return finish()
	}

	for _, rule := range rules {
		result := s.executeRule(ctx, rule.ID, organizationID, triggeredBy, source)

		combined.RulesExecuted++
		combined.TotalRecordsEvaluated += result.RecordsEvaluated
		combined.TotalRecordsMatched += result.RecordsMatched
		combined.TotalTasksCreated += result.TasksCreated
		combined.TotalRecordsSkipped += result.RecordsSkippedDuplicate

		combined.ExecutionsByRule = append(combined.ExecutionsByRule, RuleOutcome{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Status:         result.Status,
			TasksCreated:   result.TasksCreated,
			RecordsMatched: result.RecordsMatched,
			Error:          result.ErrorMessage,
		})

		// A rule failure degrades the sweep but never stops it.
		if result.Status == StatusError || result.Status == StatusPartialFailure {
			combined.OverallStatus = StatusPartialFailure
		}
	}

	span.SetAttributes(
		attribute.Int("workflow.rules_executed", combined.RulesExecuted),
		attribute.Int("workflow.total_tasks_created", combined.TotalTasksCreated),
	)
	return finish()
}

// parseRuleConfig validates the rule's condition and action payloads.
// ok=false means the rule cannot match anything (bad JSON), mirroring the
// unknown-trigger case.
func (s *WorkflowService) parseRuleConfig(rule *models.WorkflowRule) (TriggerConditions, ActionConfig, bool) {
	var cond TriggerConditions
	var cfg ActionConfig
	if rule.TriggerConditions != "" {
		if err := json.Unmarshal([]byte(rule.TriggerConditions), &cond); err != nil {
			s.logger.Warnf("workflow: invalid trigger conditions for rule %d: %v", rule.ID, err)
			return cond, cfg, false
		}
	}
	if rule.ActionConfig != "" {
		if err := json.Unmarshal([]byte(rule.ActionConfig), &cfg); err != nil {
			s.logger.Warnf("workflow: invalid action config for rule %d: %v", rule.ID, err)
			return cond, cfg, false
		}
	}
	return cond, cfg, true
}

// organizationLocation resolves the org's timezone, falling back to the
// configured default when unset or unknown.
func (s *WorkflowService) organizationLocation(ctx context.Context, organizationID uint) *time.Location {
	var org models.Organization
	name := ""
	if err := s.db.WithContext(ctx).Select("timezone").First(&org, organizationID).Error; err == nil {
		name = org.Timezone
	}
	return LoadLocationOrDefault(name, s.defaultTZ)
}

// logExecution writes the audit row and bumps the rule's last-run marker.
// Both are best-effort: a logging failure must never mask the execution
// result.
func (s *WorkflowService) logExecution(ctx context.Context, rule *models.WorkflowRule, summary *RuleExecutionSummary, triggeredBy *uint, source string, runAt time.Time) {
	details, err := json.Marshal(summary.Details)
	if err != nil {
		details = []byte("[]")
	}

	row := &models.WorkflowRuleLog{
		OrganizationID:          summary.OrganizationID,
		RuleID:                  rule.ID,
		ExecutionID:             summary.ExecutionID,
		RunAt:                   runAt,
		TriggeredBy:             triggeredBy,
		TriggerSource:           source,
		RecordsEvaluated:        summary.RecordsEvaluated,
		RecordsMatched:          summary.RecordsMatched,
		TasksCreated:            summary.TasksCreated,
		RecordsSkippedDuplicate: summary.RecordsSkippedDuplicate,
		Status:                  summary.Status,
		ErrorMessage:            summary.ErrorMessage,
		Details:                 string(details),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.logger.Warnf("workflow: record execution log for rule %d failed: %v", rule.ID, err)
	}

	if err := s.db.WithContext(ctx).Model(&models.WorkflowRule{}).
		Where("id = ?", rule.ID).
		Update("last_run_at", runAt).Error; err != nil {
		s.logger.Warnf("workflow: update last_run_at for rule %d failed: %v", rule.ID, err)
	}
}
