package api

import (
	"net/http"

	"campaign-dashboard/internal/middleware"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/widget"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type WidgetHandler struct {
	db *gorm.DB
}

func NewWidgetHandler(db *gorm.DB) *WidgetHandler {
	return &WidgetHandler{db: db}
}

func (h *WidgetHandler) load(accountID string) (widget.Config, error) {
	var row models.ChatWidget
	err := h.db.Where("account_id = ?", accountID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return widget.Default(), nil
	}
	if err != nil {
		return widget.Config{}, err
	}
	return widget.FromModel(row), nil
}

// GetWidget returns the stored builder state, or the defaults
func (h *WidgetHandler) GetWidget(c *gin.Context) {
	cfg, err := h.load(middleware.AccountID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *WidgetHandler) UpdateWidget(c *gin.Context) {
	var cfg widget.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := cfg.Validate(); err != nil {
		var fields widget.FieldErrors
		if errors.As(err, &fields) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Widget is invalid", "fields": fields})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	clean := cfg.Sanitized()
	row := clean.Model(middleware.AccountID(c))
	if err := h.db.Save(&row).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, clean)
}

// GetSnippet renders the embeddable HTML of the stored widget
func (h *WidgetHandler) GetSnippet(c *gin.Context) {
	cfg, err := h.load(middleware.AccountID(c))
	if err != nil {
		internalError(c, err)
		return
	}

	snippet, err := cfg.Snippet()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snippet": snippet, "link": cfg.Sanitized().Link()})
}
