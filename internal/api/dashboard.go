package api

import (
	"net/http"
	"strconv"
	"strings"

	"campaign-dashboard/internal/campaign"
	"campaign-dashboard/internal/middleware"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 500
)

type DashboardHandler struct {
	db       *gorm.DB
	provider WhatsAppProvider
	log      logrus.FieldLogger
}

func NewDashboardHandler(db *gorm.DB, provider WhatsAppProvider, log logrus.FieldLogger) *DashboardHandler {
	return &DashboardHandler{db: db, provider: provider, log: log}
}

// GetMessages lists the newest messages. Filters: campaign_id, status,
// recipient, limit.
func (h *DashboardHandler) GetMessages(c *gin.Context) {
	q := h.db.Where("account_id = ?", middleware.AccountID(c))
	if id := c.Query("campaign_id"); id != "" {
		q = q.Where("campaign_id = ?", id)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if to := c.Query("recipient"); to != "" {
		q = q.Where("recipient = ?", templateutil.NormalizePhone(to))
	}

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = min(n, maxMessageLimit)
	}

	var messages []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&messages).Error; err != nil {
		internalError(c, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

type SendRequest struct {
	To      string `json:"to" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// SendMessage sends a one-off WhatsApp text and records it
func (h *DashboardHandler) SendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to := templateutil.NormalizePhone(req.To)
	if !templateutil.IsCompletePhoneNumber(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}
	content := strings.TrimSpace(req.Content)

	msg := models.Message{
		AccountID: middleware.AccountID(c),
		Channel:   campaign.ChannelWhatsApp,
		Recipient: to,
		Content:   content,
		Status:    "sent",
	}
	id, err := h.provider.SendText(c.Request.Context(), to, content)
	if err != nil {
		msg.Status = "failed"
		msg.Error = err.Error()
	}
	msg.ProviderID = id
	if dbErr := h.db.Create(&msg).Error; dbErr != nil {
		h.log.WithError(dbErr).WithField("to", to).Error("failed to record message")
	}
	if err != nil {
		providerError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

type Overview struct {
	Contacts  int64            `json:"contacts"`
	Templates int64            `json:"templates"`
	Campaigns int64            `json:"campaigns"`
	Messages  map[string]int64 `json:"messages"`
}

// GetOverview counts the account's records for the dashboard home page
func (h *DashboardHandler) GetOverview(c *gin.Context) {
	accountID := middleware.AccountID(c)
	var out Overview

	for _, count := range []struct {
		model interface{}
		dst   *int64
	}{
		{&models.Contact{}, &out.Contacts},
		{&models.Template{}, &out.Templates},
		{&models.Campaign{}, &out.Campaigns},
	} {
		if err := h.db.Model(count.model).Where("account_id = ?", accountID).Count(count.dst).Error; err != nil {
			internalError(c, err)
			return
		}
	}

	var rows []struct {
		Status string
		N      int64
	}
	err := h.db.Model(&models.Message{}).
		Select("status, count(*) as n").
		Where("account_id = ?", accountID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		internalError(c, err)
		return
	}
	out.Messages = make(map[string]int64, len(rows))
	for _, r := range rows {
		out.Messages[r.Status] = r.N
	}

	c.JSON(http.StatusOK, out)
}
