package api

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/database"
	"campaign-dashboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var secretSettings = map[string]bool{
	database.SettingWhatsAppToken: true,
	database.SettingVerifyToken:   true,
}

var settingChannels = map[string]string{
	database.SettingVerifyToken:   "whatsapp",
	database.SettingWhatsAppToken: "whatsapp",
	database.SettingPhoneNumberID: "whatsapp",
	database.SettingWABAID:        "whatsapp",
	database.SettingSMSSenderID:   "sms",
}

type ChannelHandler struct {
	Config *config.Config

	db  *gorm.DB
	log logrus.FieldLogger
	mu  sync.Mutex
}

func NewChannelHandler(cfg *config.Config, db *gorm.DB, log logrus.FieldLogger) *ChannelHandler {
	return &ChannelHandler{Config: cfg, db: db, log: log}
}

type ChannelSetting struct {
	Key        string `json:"key"`
	Channel    string `json:"channel"`
	Value      string `json:"value"`
	Configured bool   `json:"configured"`
}

func mask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// GetChannels lists the channel settings in effect. Secrets are masked.
func (h *ChannelHandler) GetChannels(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	settings := database.ConfigSettings(h.Config)
	out := make([]ChannelSetting, 0, len(settings))
	for key, value := range settings {
		v := *value
		if secretSettings[key] {
			v = mask(v)
		}
		out = append(out, ChannelSetting{Key: key, Channel: settingChannels[key], Value: v, Configured: *value != ""})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	c.JSON(http.StatusOK, out)
}

type UpdateSettingRequest struct {
	Value string `json:"value"`
}

// UpdateChannel stores a setting and applies it to the running config
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	key := c.Param("key")

	var req UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	target, ok := database.ConfigSettings(h.Config)[key]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown setting"})
		return
	}

	value := strings.TrimSpace(req.Value)
	if err := h.db.Save(&models.SystemSetting{Key: key, Value: value}).Error; err != nil {
		internalError(c, err)
		return
	}
	*target = value

	h.log.WithField("key", key).Info("channel setting updated")
	c.JSON(http.StatusOK, gin.H{"status": "Setting updated"})
}
