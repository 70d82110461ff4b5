package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uppalcrm/uppalcrm/internal/config"
	"github.com/uppalcrm/uppalcrm/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var sweepOrgID uint

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the workflow sweep once",
	Long:  `Execute every enabled workflow rule immediately, ignoring the scheduler's local-hour gate. With --org, sweep a single organization.`,
	Run:   runSweep,
}

func init() {
	sweepCmd.Flags().UintVar(&sweepOrgID, "org", 0, "limit the sweep to one organization id")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	appLogger := logrus.StandardLogger()
	engine := services.NewWorkflowService(db, appLogger, cfg.Workflow.DefaultTimezone)

	ctx := context.Background()
	if sweepOrgID != 0 {
		summary := engine.ExecuteAllRules(ctx, sweepOrgID, nil, "manual")
		printJSON(summary)
		return
	}

	cron := services.NewWorkflowCron(db, appLogger, engine,
		cfg.Workflow.RunHour, cfg.Workflow.DefaultTimezone, cfg.Workflow.SweepWarnAfter)
	report := cron.TriggerManualRun(ctx)
	printJSON(report)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logrus.Errorf("encode result: %v", err)
		return
	}
	fmt.Println(string(out))
}
