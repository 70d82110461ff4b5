package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Host == "" {
		t.Error("expected Server.Host to be set")
	}
	if cfg.Server.Port == 0 {
		t.Error("expected Server.Port to be non-zero")
	}
	if cfg.Database.Name == "" {
		t.Error("expected Database.Name to be set")
	}
	if cfg.JWT.Secret == "" {
		t.Error("expected JWT.Secret to be set")
	}
	if cfg.Log.Level == "" {
		t.Error("expected Log.Level to be set")
	}
}

func TestConfig_WorkflowDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Workflow.RunHour != 6 {
		t.Errorf("expected run hour 6, got %d", cfg.Workflow.RunHour)
	}
	if cfg.Workflow.DefaultTimezone != "America/New_York" {
		t.Errorf("expected default timezone America/New_York, got %s", cfg.Workflow.DefaultTimezone)
	}
	if cfg.Workflow.SweepWarnAfter == 0 {
		t.Error("expected sweep warn threshold to be set")
	}
}

func TestConfig_SecurityDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Security.RateLimiting.Enabled {
		t.Error("expected rate limiting enabled by default")
	}
	if cfg.Security.RateLimiting.RequestsPerMinute == 0 {
		t.Error("expected requests per minute to be set")
	}
	if !cfg.Security.CORS.Enabled {
		t.Error("expected CORS enabled by default")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	viper.Reset()
	viper.Set("workflow.run_hour", 8)
	viper.Set("server.port", 9090)
	defer viper.Reset()

	cfg := Load()
	if cfg.Workflow.RunHour != 8 {
		t.Errorf("expected run hour 8, got %d", cfg.Workflow.RunHour)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.Workflow.DefaultTimezone != "America/New_York" {
		t.Errorf("expected default timezone preserved, got %s", cfg.Workflow.DefaultTimezone)
	}
}
