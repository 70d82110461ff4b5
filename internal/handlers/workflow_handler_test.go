package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uppalcrm/uppalcrm/internal/models"
	"github.com/uppalcrm/uppalcrm/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newWorkflowHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Organization{}, &models.User{}, &models.Contact{}, &models.Account{},
		&models.Interaction{}, &models.WorkflowRule{}, &models.WorkflowRuleLog{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// stubAuth injects the context values the real auth middleware would set.
func stubAuth(orgID, userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("organization_id", orgID)
		c.Set("user_id", userID)
		c.Next()
	}
}

func newWorkflowTestRouter(t *testing.T, db *gorm.DB, orgID, userID uint) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := services.NewWorkflowService(db, nil, "UTC")
	cron := services.NewWorkflowCron(db, nil, svc, 6, "UTC", 5*time.Minute)
	handler := NewWorkflowRuleHandler(svc, cron)

	r := gin.New()
	api := r.Group("/api")
	api.Use(stubAuth(orgID, userID))
	RegisterWorkflowRuleRoutes(api, handler)
	return r
}

func seedWorkflowFixture(t *testing.T, db *gorm.DB) (*models.Organization, *models.User) {
	t.Helper()
	org := &models.Organization{Name: "Test Org", Timezone: "UTC"}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("create org: %v", err)
	}
	user := &models.User{OrganizationID: org.ID, Email: "u@example.com", Name: "U"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return org, user
}

func validRuleBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"name":               "Renewal reminder",
		"trigger_type":       "renewal_within_days",
		"trigger_conditions": map[string]int{"days": 30},
		"action_config": map[string]interface{}{
			"subject_template": "Renewal: {{account_name}}",
			"priority":         "auto",
		},
	})
	return body
}

func TestWorkflowHandler_CreateAndListRules(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	org, user := seedWorkflowFixture(t, db)
	router := newWorkflowTestRouter(t, db, org.ID, user.ID)

	req := httptest.NewRequest("POST", "/api/workflow-rules", bytes.NewReader(validRuleBody()))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.WorkflowRule
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created rule: %v", err)
	}
	assert.Equal(t, org.ID, created.OrganizationID)
	assert.Equal(t, user.ID, created.CreatedBy)
	assert.True(t, created.IsEnabled)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/workflow-rules", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Data  []models.WorkflowRule `json:"data"`
		Total int                   `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	assert.Equal(t, 1, list.Total)
}

func TestWorkflowHandler_CreateRule_UnsupportedTrigger(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	org, user := seedWorkflowFixture(t, db)
	router := newWorkflowTestRouter(t, db, org.ID, user.ID)

	body, _ := json.Marshal(map[string]interface{}{
		"name":         "Bad rule",
		"trigger_type": "birthday_soon",
	})
	req := httptest.NewRequest("POST", "/api/workflow-rules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestWorkflowHandler_GetUpdateDelete(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	org, user := seedWorkflowFixture(t, db)
	router := newWorkflowTestRouter(t, db, org.ID, user.ID)

	req := httptest.NewRequest("POST", "/api/workflow-rules", bytes.NewReader(validRuleBody()))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var created models.WorkflowRule
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", fmt.Sprintf("/api/workflow-rules/%d", created.ID), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	update, _ := json.Marshal(map[string]interface{}{"is_enabled": false})
	req = httptest.NewRequest("PUT", fmt.Sprintf("/api/workflow-rules/%d", created.ID), bytes.NewReader(update))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reloaded models.WorkflowRule
	if err := db.First(&reloaded, created.ID).Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	assert.False(t, reloaded.IsEnabled)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", fmt.Sprintf("/api/workflow-rules/%d", created.ID), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", fmt.Sprintf("/api/workflow-rules/%d", created.ID), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkflowHandler_ExecuteRule(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	org, user := seedWorkflowFixture(t, db)
	router := newWorkflowTestRouter(t, db, org.ID, user.ID)

	contact := &models.Contact{OrganizationID: org.ID, FirstName: "Jane"}
	db.Create(contact)
	renewal := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 5)
	account := &models.Account{
		OrganizationID:  org.ID,
		AccountName:     "Acme",
		ContactID:       contact.ID,
		NextRenewalDate: &renewal,
		CreatedBy:       user.ID,
	}
	db.Create(account)

	req := httptest.NewRequest("POST", "/api/workflow-rules", bytes.NewReader(validRuleBody()))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var created models.WorkflowRule
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", fmt.Sprintf("/api/workflow-rules/%d/execute", created.ID), nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary services.RuleExecutionSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	assert.Equal(t, services.StatusSuccess, summary.Status)
	assert.Equal(t, 1, summary.TasksCreated)
}

func TestWorkflowHandler_ExecuteRule_NotFound(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	org, user := seedWorkflowFixture(t, db)
	router := newWorkflowTestRouter(t, db, org.ID, user.ID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/workflow-rules/999/execute", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkflowHandler_ExecuteAllAndLogs(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	org, user := seedWorkflowFixture(t, db)
	router := newWorkflowTestRouter(t, db, org.ID, user.ID)

	req := httptest.NewRequest("POST", "/api/workflow-rules", bytes.NewReader(validRuleBody()))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/workflow-rules/execute-all", nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var combined services.CombinedSummary
	if err := json.Unmarshal(w.Body.Bytes(), &combined); err != nil {
		t.Fatalf("decode combined summary: %v", err)
	}
	assert.Equal(t, 1, combined.RulesExecuted)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/workflow-rules/logs?page=1&page_size=10", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var page PaginatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	assert.Equal(t, int64(1), page.Total)
}

func TestWorkflowHandler_TriggerSweep_AdminOnly(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	org, user := seedWorkflowFixture(t, db)

	router := newWorkflowTestRouter(t, db, org.ID, user.ID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/workflow-rules/sweep", nil))
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	gin.SetMode(gin.TestMode)
	svc := services.NewWorkflowService(db, nil, "UTC")
	cron := services.NewWorkflowCron(db, nil, svc, 6, "UTC", 5*time.Minute)
	handler := NewWorkflowRuleHandler(svc, cron)
	r := gin.New()
	api := r.Group("/api")
	api.Use(stubAuth(org.ID, user.ID), func(c *gin.Context) {
		c.Set("role", "admin")
		c.Next()
	})
	RegisterWorkflowRuleRoutes(api, handler)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/workflow-rules/sweep", nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report services.SweepReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	assert.NotEmpty(t, report.SweepID)
}

func TestWorkflowHandler_MissingOrgScope(t *testing.T) {
	db := newWorkflowHandlerTestDB(t)
	gin.SetMode(gin.TestMode)
	svc := services.NewWorkflowService(db, nil, "UTC")
	cron := services.NewWorkflowCron(db, nil, svc, 6, "UTC", 5*time.Minute)
	handler := NewWorkflowRuleHandler(svc, cron)

	r := gin.New()
	api := r.Group("/api")
	RegisterWorkflowRuleRoutes(api, handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/workflow-rules", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
