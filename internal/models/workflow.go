package models

import "time"

// WorkflowRule is a persisted automation definition. The engine only ever
// writes LastRunAt; everything else is managed through the rules API.
type WorkflowRule struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	OrganizationID    uint       `gorm:"index" json:"organization_id"`
	Name              string     `gorm:"not null" json:"name"`
	Description       string     `gorm:"type:text" json:"description"`
	EntityType        string     `gorm:"default:'account'" json:"entity_type"`  // account
	TriggerType       string     `gorm:"not null" json:"trigger_type"`          // renewal_within_days
	TriggerConditions string     `gorm:"type:text" json:"trigger_conditions"`   // JSON: {days}
	ActionType        string     `gorm:"default:'create_task'" json:"action_type"`
	ActionConfig      string     `gorm:"type:text" json:"action_config"` // JSON: templates, priority, assignee
	// Boolean defaults live in the service layer: a zero-valued field with
	// a column default would be dropped from the INSERT and false could
	// never be stored.
	IsEnabled         bool       `json:"is_enabled"`
	PreventDuplicates bool       `json:"prevent_duplicates"`
	RunMode           string     `gorm:"default:'manual_and_auto'" json:"run_mode"` // manual_and_auto, manual_only
	SortOrder         int        `gorm:"default:0" json:"sort_order"`
	CreatedBy         uint       `json:"created_by"`
	LastRunAt         *time.Time `json:"last_run_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// WorkflowRuleLog is an append-only audit row, one per rule execution
// attempt, written even when the execution fails.
type WorkflowRuleLog struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	OrganizationID          uint      `gorm:"index" json:"organization_id"`
	RuleID                  uint      `gorm:"index" json:"rule_id"`
	ExecutionID             string    `gorm:"index" json:"execution_id"` // uuid
	RunAt                   time.Time `gorm:"index" json:"run_at"`
	TriggeredBy             *uint     `json:"triggered_by"` // nil for cron
	TriggerSource           string    `json:"trigger_source"` // manual, cron
	RecordsEvaluated        int       `json:"records_evaluated"`
	RecordsMatched          int       `json:"records_matched"`
	TasksCreated            int       `json:"tasks_created"`
	RecordsSkippedDuplicate int       `json:"records_skipped_duplicate"`
	Status                  string    `gorm:"index" json:"status"` // success, partial_failure, error, skipped
	ErrorMessage            string    `gorm:"type:text" json:"error_message"`
	Details                 string    `gorm:"type:text" json:"details"` // JSON array of per-record outcomes

	Rule WorkflowRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}
