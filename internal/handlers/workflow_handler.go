package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/uppalcrm/uppalcrm/internal/services"

	"github.com/gin-gonic/gin"
)

// WorkflowRuleHandler exposes workflow rule management and execution.
type WorkflowRuleHandler struct {
	workflowService *services.WorkflowService
	workflowCron    *services.WorkflowCron
}

func NewWorkflowRuleHandler(workflowService *services.WorkflowService, workflowCron *services.WorkflowCron) *WorkflowRuleHandler {
	return &WorkflowRuleHandler{
		workflowService: workflowService,
		workflowCron:    workflowCron,
	}
}

// orgID reads the organization scope injected by the auth middleware.
func orgID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("organization_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// userID reads the authenticated user injected by the auth middleware.
func userID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// ListRules returns all rules for the caller's organization.
func (h *WorkflowRuleHandler) ListRules(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}

	rules, err := h.workflowService.ListRules(c.Request.Context(), org)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "LIST_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules, "total": len(rules)})
}

// GetRule returns one rule with its recent execution history.
func (h *WorkflowRuleHandler) GetRule(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_ID", Message: "invalid rule id"})
		return
	}

	rule, err := h.workflowService.GetRule(c.Request.Context(), id, org)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "RULE_NOT_FOUND", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "GET_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule creates a new workflow rule.
func (h *WorkflowRuleHandler) CreateRule(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}
	user, _ := userID(c)

	var req services.RuleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	rule, err := h.workflowService.CreateRule(c.Request.Context(), org, user, &req)
	if err != nil {
		if strings.Contains(err.Error(), "invalid") || strings.Contains(err.Error(), "unsupported") {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_RULE", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "CREATE_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule partially updates a rule.
func (h *WorkflowRuleHandler) UpdateRule(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_ID", Message: "invalid rule id"})
		return
	}

	var req services.RuleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	rule, err := h.workflowService.UpdateRule(c.Request.Context(), id, org, &req)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not found"):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "RULE_NOT_FOUND", Message: err.Error()})
		case strings.Contains(err.Error(), "invalid"):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_RULE", Message: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "UPDATE_FAILED", Message: err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule, keeping its execution logs.
func (h *WorkflowRuleHandler) DeleteRule(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_ID", Message: "invalid rule id"})
		return
	}

	if err := h.workflowService.DeleteRule(c.Request.Context(), id, org); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "RULE_NOT_FOUND", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "DELETE_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ExecuteRule runs one rule immediately on behalf of the caller.
func (h *WorkflowRuleHandler) ExecuteRule(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_ID", Message: "invalid rule id"})
		return
	}

	var triggeredBy *uint
	if user, ok := userID(c); ok {
		triggeredBy = &user
	}

	summary := h.workflowService.ExecuteRule(c.Request.Context(), id, org, triggeredBy)
	if summary.Status == services.StatusError && strings.Contains(summary.ErrorMessage, "not found") {
		c.JSON(http.StatusNotFound, summary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExecuteAllRules runs every enabled rule for the caller's organization.
func (h *WorkflowRuleHandler) ExecuteAllRules(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}

	var triggeredBy *uint
	if user, ok := userID(c); ok {
		triggeredBy = &user
	}

	summary := h.workflowService.ExecuteAllRules(c.Request.Context(), org, triggeredBy, "manual")
	c.JSON(http.StatusOK, summary)
}

// ListRuleLogs pages through execution logs, optionally for one rule via
// the rule_id query parameter.
func (h *WorkflowRuleHandler) ListRuleLogs(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED", Message: "missing organization scope"})
		return
	}

	var req services.RuleLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	var ruleID uint
	if raw := c.Query("rule_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "INVALID_ID", Message: "invalid rule_id"})
			return
		}
		ruleID = uint(parsed)
	}

	logs, total, err := h.workflowService.ListRuleLogs(c.Request.Context(), org, ruleID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "LIST_FAILED", Message: err.Error()})
		return
	}

	pages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     logs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    pages,
	})
}

// TriggerSweep runs the scheduler sweep for all organizations immediately.
// The sweep crosses tenant boundaries, so it requires the admin role.
func (h *WorkflowRuleHandler) TriggerSweep(c *gin.Context) {
	if role, _ := c.Get("role"); role != "admin" {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "FORBIDDEN", Message: "sweep requires admin role"})
		return
	}
	report := h.workflowCron.TriggerManualRun(c.Request.Context())
	if report == nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "SWEEP_IN_PROGRESS", Message: "a sweep is already running"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// RegisterWorkflowRuleRoutes wires the workflow endpoints.
func RegisterWorkflowRuleRoutes(r *gin.RouterGroup, handler *WorkflowRuleHandler) {
	rules := r.Group("/workflow-rules")
	{
		rules.GET("", handler.ListRules)
		rules.POST("", handler.CreateRule)
		rules.GET("/logs", handler.ListRuleLogs)
		rules.POST("/execute-all", handler.ExecuteAllRules)
		rules.POST("/sweep", handler.TriggerSweep)
		rules.GET(":id", handler.GetRule)
		rules.PUT(":id", handler.UpdateRule)
		rules.DELETE(":id", handler.DeleteRule)
		rules.POST(":id/execute", handler.ExecuteRule)
	}
}
