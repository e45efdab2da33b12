package api

import (
	"net/http"
	"strings"

	"campaign-dashboard/internal/automation"
	"campaign-dashboard/internal/middleware"
	"campaign-dashboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type AutomationHandler struct {
	db *gorm.DB
}

func NewAutomationHandler(db *gorm.DB) *AutomationHandler {
	return &AutomationHandler{db: db}
}

// GetRules returns the account's rules in evaluation order
func (h *AutomationHandler) GetRules(c *gin.Context) {
	var rules []models.AutomationRule
	if err := h.db.Where("account_id = ?", middleware.AccountID(c)).Order("priority desc, id").Find(&rules).Error; err != nil {
		internalError(c, err)
		return
	}
	if rules == nil {
		rules = []models.AutomationRule{}
	}
	c.JSON(http.StatusOK, rules)
}

type RuleRequest struct {
	Name     string `json:"name"`
	Enabled  *bool  `json:"enabled"`
	Priority int    `json:"priority"`
	Operator string `json:"operator"`
	Keyword  string `json:"keyword"`
	Reply    string `json:"reply"`
	AddTag   string `json:"add_tag"`
}

func (r RuleRequest) apply(rule *models.AutomationRule) {
	rule.Name = strings.TrimSpace(r.Name)
	rule.Priority = r.Priority
	rule.Operator = r.Operator
	rule.Keyword = r.Keyword
	rule.Reply = r.Reply
	rule.AddTag = strings.TrimSpace(r.AddTag)
	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
}

// CreateRule stores a new rule. Rules start enabled unless told otherwise.
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := models.AutomationRule{AccountID: middleware.AccountID(c), Enabled: true}
	req.apply(&rule)
	if err := automation.ValidateRule(rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Create(&rule).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *AutomationHandler) find(c *gin.Context) (*models.AutomationRule, bool) {
	var rule models.AutomationRule
	err := h.db.Where("id = ? AND account_id = ?", c.Param("id"), middleware.AccountID(c)).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return nil, false
	}
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	return &rule, true
}

func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, ok := h.find(c)
	if !ok {
		return
	}

	req.apply(rule)
	if err := automation.ValidateRule(*rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.Save(rule).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	rule, ok := h.find(c)
	if !ok {
		return
	}
	if err := h.db.Delete(rule).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Rule deleted"})
}

// ToggleRule enables or disables a rule
func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, ok := h.find(c)
	if !ok {
		return
	}

	if err := h.db.Model(rule).Update("enabled", req.Enabled).Error; err != nil {
		internalError(c, err)
		return
	}
	rule.Enabled = req.Enabled
	c.JSON(http.StatusOK, rule)
}
