package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uppalcrm/uppalcrm/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// RuleCreateRequest creates a workflow rule.
type RuleCreateRequest struct {
	Name              string          `json:"name" binding:"required"`
	Description       string          `json:"description"`
	EntityType        string          `json:"entity_type"`
	TriggerType       string          `json:"trigger_type" binding:"required"`
	TriggerConditions json.RawMessage `json:"trigger_conditions"`
	ActionType        string          `json:"action_type"`
	ActionConfig      json.RawMessage `json:"action_config"`
	IsEnabled         *bool           `json:"is_enabled"`
	PreventDuplicates *bool           `json:"prevent_duplicates"`
	RunMode           string          `json:"run_mode"`
	SortOrder         int             `json:"sort_order"`
}

// RuleUpdateRequest partially updates a workflow rule.
type RuleUpdateRequest struct {
	Name              *string         `json:"name"`
	Description       *string         `json:"description"`
	TriggerConditions json.RawMessage `json:"trigger_conditions"`
	ActionConfig      json.RawMessage `json:"action_config"`
	IsEnabled         *bool           `json:"is_enabled"`
	PreventDuplicates *bool           `json:"prevent_duplicates"`
	RunMode           *string         `json:"run_mode"`
	SortOrder         *int            `json:"sort_order"`
}

// RuleLogListRequest pages through a rule's execution history.
type RuleLogListRequest struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

// RuleWithLogs is a rule plus its most recent executions.
type RuleWithLogs struct {
	models.WorkflowRule
	RecentLogs []models.WorkflowRuleLog `json:"recent_logs"`
}

var validRunModes = map[string]bool{"manual_and_auto": true, "manual_only": true}

// ListRules returns all rules for an organization in execution order.
func (s *WorkflowService) ListRules(ctx context.Context, organizationID uint) ([]models.WorkflowRule, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.list_rules")
	defer span.End()

	var rules []models.WorkflowRule
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("sort_order ASC, created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	span.SetAttributes(attribute.Int("workflow.rule_count", len(rules)))
	return rules, nil
}

// GetRule returns one rule with its ten most recent execution logs.
func (s *WorkflowService) GetRule(ctx context.Context, ruleID, organizationID uint) (*RuleWithLogs, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.get_rule")
	defer span.End()
	span.SetAttributes(attribute.Int64("workflow.rule_id", int64(ruleID)))

	var rule models.WorkflowRule
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", ruleID, organizationID).
		First(&rule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("rule not found: %d", ruleID)
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}

	var logs []models.WorkflowRuleLog
	if err := s.db.WithContext(ctx).
		Where("rule_id = ? AND organization_id = ?", ruleID, organizationID).
		Order("run_at DESC").
		Limit(10).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to load rule logs: %w", err)
	}

	return &RuleWithLogs{WorkflowRule: rule, RecentLogs: logs}, nil
}

// CreateRule validates and persists a new rule.
func (s *WorkflowService) CreateRule(ctx context.Context, organizationID, createdBy uint, req *RuleCreateRequest) (*models.WorkflowRule, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.create_rule")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.rule.name", req.Name),
		attribute.String("workflow.rule.trigger_type", req.TriggerType),
	)

	entityType := req.EntityType
	if entityType == "" {
		entityType = "account"
	}
	actionType := req.ActionType
	if actionType == "" {
		actionType = "create_task"
	}
	runMode := req.RunMode
	if runMode == "" {
		runMode = "manual_and_auto"
	}
	if !validRunModes[runMode] {
		return nil, fmt.Errorf("invalid run mode: %s", runMode)
	}
	if _, ok := s.matchers[TriggerKey{EntityType: entityType, TriggerType: req.TriggerType}]; !ok {
		return nil, fmt.Errorf("unsupported trigger: %s/%s", entityType, req.TriggerType)
	}
	if err := validateRulePayloads(req.TriggerConditions, req.ActionConfig); err != nil {
		return nil, err
	}

	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	preventDup := true
	if req.PreventDuplicates != nil {
		preventDup = *req.PreventDuplicates
	}

	rule := &models.WorkflowRule{
		OrganizationID:    organizationID,
		Name:              req.Name,
		Description:       req.Description,
		EntityType:        entityType,
		TriggerType:       req.TriggerType,
		TriggerConditions: string(req.TriggerConditions),
		ActionType:        actionType,
		ActionConfig:      string(req.ActionConfig),
		IsEnabled:         enabled,
		PreventDuplicates: preventDup,
		RunMode:           runMode,
		SortOrder:         req.SortOrder,
		CreatedBy:         createdBy,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	s.logger.Infof("workflow: rule created: %s (id=%d, org=%d)", rule.Name, rule.ID, organizationID)
	return rule, nil
}

// UpdateRule applies the non-nil fields of the request to an existing rule.
func (s *WorkflowService) UpdateRule(ctx context.Context, ruleID, organizationID uint, req *RuleUpdateRequest) (*models.WorkflowRule, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.update_rule")
	defer span.End()
	span.SetAttributes(attribute.Int64("workflow.rule_id", int64(ruleID)))

	var rule models.WorkflowRule
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", ruleID, organizationID).
		First(&rule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("rule not found: %d", ruleID)
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}

	if err := validateRulePayloads(req.TriggerConditions, req.ActionConfig); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.TriggerConditions != nil {
		updates["trigger_conditions"] = string(req.TriggerConditions)
	}
	if req.ActionConfig != nil {
		updates["action_config"] = string(req.ActionConfig)
	}
	if req.IsEnabled != nil {
		updates["is_enabled"] = *req.IsEnabled
	}
	if req.PreventDuplicates != nil {
		updates["prevent_duplicates"] = *req.PreventDuplicates
	}
	if req.RunMode != nil {
		if !validRunModes[*req.RunMode] {
			return nil, fmt.Errorf("invalid run mode: %s", *req.RunMode)
		}
		updates["run_mode"] = *req.RunMode
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&rule).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update rule: %w", err)
		}
	}
	return &rule, nil
}

// DeleteRule removes a rule. Its execution logs are kept for audit.
func (s *WorkflowService) DeleteRule(ctx context.Context, ruleID, organizationID uint) error {
	ctx, span := s.tracer.Start(ctx, "workflow.delete_rule")
	defer span.End()
	span.SetAttributes(attribute.Int64("workflow.rule_id", int64(ruleID)))

	result := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", ruleID, organizationID).
		Delete(&models.WorkflowRule{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rule not found: %d", ruleID)
	}
	s.logger.Infof("workflow: rule deleted: id=%d, org=%d", ruleID, organizationID)
	return nil
}

// ListRuleLogs pages through execution logs for an organization, newest
// first. ruleID filters to one rule when non-zero.
func (s *WorkflowService) ListRuleLogs(ctx context.Context, organizationID, ruleID uint, req *RuleLogListRequest) ([]models.WorkflowRuleLog, int64, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.list_rule_logs")
	defer span.End()

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.WorkflowRuleLog{}).
		Where("organization_id = ?", organizationID)
	if ruleID != 0 {
		query = query.Where("rule_id = ?", ruleID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rule logs: %w", err)
	}

	var logs []models.WorkflowRuleLog
	if err := query.
		Order("run_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list rule logs: %w", err)
	}
	return logs, total, nil
}

func validateRulePayloads(cond, cfg json.RawMessage) error {
	if len(cond) > 0 {
		var c TriggerConditions
		if err := json.Unmarshal(cond, &c); err != nil {
			return fmt.Errorf("invalid trigger conditions: %w", err)
		}
		if c.Days < 0 {
			return fmt.Errorf("trigger conditions days must not be negative")
		}
	}
	if len(cfg) > 0 {
		var c ActionConfig
		if err := json.Unmarshal(cfg, &c); err != nil {
			return fmt.Errorf("invalid action config: %w", err)
		}
		if c.DaysBeforeDue < 0 {
			return fmt.Errorf("action config days_before_due must not be negative")
		}
	}
	return nil
}
