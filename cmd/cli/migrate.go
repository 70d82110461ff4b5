package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/uppalcrm/uppalcrm/internal/config"
	"github.com/uppalcrm/uppalcrm/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var migrateSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Create or update all tables and indexes. With --seed, insert a demo organization, user and workflow rule.`,
	Run:   runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "seed demo data after migrating")
	rootCmd.AddCommand(migrateCmd)
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password,
			cfg.Database.Name, cfg.Database.Port, cfg.Database.SSLMode)
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	logrus.Info("Starting database migration...")

	if err := db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Contact{},
		&models.Account{},
		&models.Interaction{},
		&models.WorkflowRule{},
		&models.WorkflowRuleLog{},
	); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	logrus.Info("Creating additional indexes...")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_accounts_org_renewal ON accounts(organization_id, next_renewal_date)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_interactions_account_status ON interactions(account_id, interaction_type, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_interactions_org_scheduled ON interactions(organization_id, scheduled_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_workflow_rules_org_enabled ON workflow_rules(organization_id, is_enabled, sort_order)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_workflow_rule_logs_rule_run ON workflow_rule_logs(rule_id, run_at)")

	if migrateSeed {
		logrus.Info("Seeding demo data...")
		seedDemoData(db)
	}

	logrus.Info("Migration completed")
}

func seedDemoData(db *gorm.DB) {
	var org models.Organization
	if err := db.Where("name = ?", "Demo Org").First(&org).Error; err != nil {
		org = models.Organization{Name: "Demo Org", Timezone: "America/New_York", Plan: "trial"}
		if err := db.Create(&org).Error; err != nil {
			logrus.Errorf("seed organization: %v", err)
			return
		}
	}

	var admin models.User
	if err := db.Where("organization_id = ? AND email = ?", org.ID, "admin@example.com").First(&admin).Error; err != nil {
		admin = models.User{
			OrganizationID: org.ID,
			Email:          "admin@example.com",
			Name:           "Admin",
			Role:           "admin",
			Status:         "active",
		}
		if err := db.Create(&admin).Error; err != nil {
			logrus.Errorf("seed user: %v", err)
			return
		}
	}

	var rule models.WorkflowRule
	if err := db.Where("organization_id = ? AND name = ?", org.ID, "Renewal reminder").First(&rule).Error; err != nil {
		cond, _ := json.Marshal(map[string]int{"days": 30})
		action, _ := json.Marshal(map[string]interface{}{
			"subject_template":     "Renewal coming up: {{account_name}} ({{days_remaining}} days)",
			"description_template": "Contact {{contact_name}} about the renewal on {{renewal_date}}.",
			"priority":             "auto",
			"days_before_due":      7,
			"assignee_strategy":    "account_owner",
		})
		rule = models.WorkflowRule{
			OrganizationID:    org.ID,
			Name:              "Renewal reminder",
			Description:       "Creates a follow-up task for every account renewing within 30 days.",
			EntityType:        "account",
			TriggerType:       "renewal_within_days",
			TriggerConditions: string(cond),
			ActionType:        "create_task",
			ActionConfig:      string(action),
			IsEnabled:         true,
			PreventDuplicates: true,
			RunMode:           "manual_and_auto",
			CreatedBy:         admin.ID,
		}
		if err := db.Create(&rule).Error; err != nil {
			logrus.Errorf("seed workflow rule: %v", err)
			return
		}
	}

	logrus.Infof("Demo data ready (org=%d, user=%d, rule=%d) at %s", org.ID, admin.ID, rule.ID, time.Now().Format(time.RFC3339))
}
