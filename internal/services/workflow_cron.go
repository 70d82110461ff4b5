package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// sweepOrg is one organization eligible for an automatic sweep.
type sweepOrg struct {
	OrganizationID uint   `gorm:"column:organization_id"`
	Timezone       string `gorm:"column:timezone"`
}

// OrgSweepResult is the outcome of one organization's sweep pass.
type OrgSweepResult struct {
	OrganizationID uint   `json:"organizationId"`
	Status         string `json:"status"`
	RulesExecuted  int    `json:"rulesExecuted"`
	TasksCreated   int    `json:"tasksCreated"`
	Error          string `json:"error,omitempty"`
}

// SweepReport summarizes one full sweep across organizations.
type SweepReport struct {
	SweepID           string           `json:"sweepId"`
	StartedAt         time.Time        `json:"startedAt"`
	OrgsConsidered    int              `json:"orgsConsidered"`
	OrgsSwept         int              `json:"orgsSwept"`
	TotalTasksCreated int              `json:"totalTasksCreated"`
	Results           []OrgSweepResult `json:"results"`
	DurationMs        int64            `json:"durationMs"`
}

// WorkflowCron drives the automatic rule sweep. It ticks every hour and
// runs each organization's enabled rules once the org's local clock
// reaches the configured run hour.
type WorkflowCron struct {
	db        *gorm.DB
	logger    *logrus.Logger
	engine    *WorkflowService
	runHour   int
	defaultTZ string
	warnAfter time.Duration
	cron      *cron.Cron
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

func NewWorkflowCron(db *gorm.DB, logger *logrus.Logger, engine *WorkflowService, runHour int, defaultTZ string, warnAfter time.Duration) *WorkflowCron {
	if logger == nil {
		logger = logrus.New()
	}
	if defaultTZ == "" {
		defaultTZ = "America/New_York"
	}
	if warnAfter <= 0 {
		warnAfter = 5 * time.Minute
	}
	return &WorkflowCron{
		db:        db,
		logger:    logger,
		engine:    engine,
		runHour:   runHour,
		defaultTZ: defaultTZ,
		warnAfter: warnAfter,
		cron:      cron.New(),
		now:       time.Now,
	}
}

// Start registers the hourly tick and launches the scheduler goroutine.
func (c *WorkflowCron) Start() error {
	if _, err := c.cron.AddFunc("0 * * * *", func() {
		c.RunSweep(context.Background(), false)
	}); err != nil {
		return err
	}
	c.cron.Start()
	c.logger.Infof("workflow cron started: hourly tick, run hour %d", c.runHour)
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (c *WorkflowCron) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.logger.Info("workflow cron stopped")
}

// TriggerManualRun sweeps every organization immediately, ignoring the
// local-hour gate. Used by operators and the CLI.
func (c *WorkflowCron) TriggerManualRun(ctx context.Context) *SweepReport {
	return c.RunSweep(ctx, true)
}

// RunSweep executes one sweep pass. Only one sweep runs at a time; a tick
// that lands while another sweep is still in flight is skipped with a
// warning, not queued.
func (c *WorkflowCron) RunSweep(ctx context.Context, bypassHourGate bool) *SweepReport {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("workflow cron: previous sweep still running, skipping tick")
		return nil
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	start := c.now()
	report := &SweepReport{
		SweepID:   uuid.NewString(),
		StartedAt: start,
		Results:   []OrgSweepResult{},
	}

	orgs, err := c.eligibleOrgs(ctx)
	if err != nil {
		c.logger.Errorf("workflow cron: load organizations failed: %v", err)
		report.DurationMs = c.now().Sub(start).Milliseconds()
		return report
	}
	report.OrgsConsidered = len(orgs)

	for _, org := range orgs {
		loc := LoadLocationOrDefault(org.Timezone, c.defaultTZ)
		if !bypassHourGate && LocalHour(c.now(), loc) != c.runHour {
			continue
		}

		result := OrgSweepResult{OrganizationID: org.OrganizationID}
		summary := c.engine.ExecuteAllRules(ctx, org.OrganizationID, nil, "cron")
		result.Status = summary.OverallStatus
		result.RulesExecuted = summary.RulesExecuted
		result.TasksCreated = summary.TotalTasksCreated
		if summary.OverallStatus == StatusPartialFailure || summary.OverallStatus == StatusError {
			c.logger.Warnf("workflow cron: sweep for org %d finished with status %s", org.OrganizationID, summary.OverallStatus)
		}

		report.OrgsSwept++
		report.TotalTasksCreated += result.TasksCreated
		report.Results = append(report.Results, result)
	}

	report.DurationMs = c.now().Sub(start).Milliseconds()
	if elapsed := time.Duration(report.DurationMs) * time.Millisecond; elapsed > c.warnAfter {
		c.logger.Warnf("workflow cron: sweep %s took %s, exceeding %s", report.SweepID, elapsed, c.warnAfter)
	}
	c.logger.Infof("workflow cron: sweep %s done: %d/%d orgs, %d tasks created, %dms",
		report.SweepID, report.OrgsSwept, report.OrgsConsidered, report.TotalTasksCreated, report.DurationMs)
	return report
}

// eligibleOrgs returns the distinct organizations that have at least one
// enabled, auto-runnable rule.
func (c *WorkflowCron) eligibleOrgs(ctx context.Context) ([]sweepOrg, error) {
	var orgs []sweepOrg
	err := c.db.WithContext(ctx).
		Table("workflow_rules wr").
		Select("DISTINCT wr.organization_id, o.timezone").
		Joins("JOIN organizations o ON o.id = wr.organization_id").
		Where("wr.is_enabled = ? AND wr.run_mode <> ?", true, "manual_only").
		Where("o.deleted_at IS NULL").
		Scan(&orgs).Error
	if err != nil {
		return nil, err
	}
	return orgs, nil
}
