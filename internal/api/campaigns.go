package api

import (
	"net/http"

	"campaign-dashboard/internal/campaign"
	"campaign-dashboard/internal/middleware"
	"campaign-dashboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Starter dispatches a stored campaign in the background
type Starter interface {
	Start(c *models.Campaign) error
}

type CampaignHandler struct {
	db         *gorm.DB
	dispatcher Starter
	log        logrus.FieldLogger
}

func NewCampaignHandler(db *gorm.DB, dispatcher Starter, log logrus.FieldLogger) *CampaignHandler {
	return &CampaignHandler{db: db, dispatcher: dispatcher, log: log}
}

func (h *CampaignHandler) GetCampaigns(c *gin.Context) {
	var campaigns []models.Campaign
	if err := h.db.Where("account_id = ?", middleware.AccountID(c)).Order("created_at desc").Find(&campaigns).Error; err != nil {
		internalError(c, err)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	c.JSON(http.StatusOK, campaigns)
}

// CreateCampaign stores the campaign and starts dispatching it. The
// response does not wait for delivery; progress arrives as
// campaign_status events.
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req campaign.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := campaign.Create(h.db, middleware.AccountID(c), req)
	var reqErr *campaign.RequestError
	if errors.As(err, &reqErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": reqErr.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	if err := h.dispatcher.Start(created); err != nil {
		internalError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"campaign": created.ID, "channel": created.Channel}).Info("campaign queued")
	c.JSON(http.StatusAccepted, created)
}

func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	found, err := campaign.Get(h.db, middleware.AccountID(c), c.Param("id"))
	if errors.Is(err, campaign.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}
