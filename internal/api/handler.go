package api

import (
	"context"
	"io"
	"net/http"

	"campaign-dashboard/internal/campaign"
	"campaign-dashboard/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// WhatsAppProvider is the Graph API surface the handlers use
type WhatsAppProvider interface {
	campaign.WhatsAppSender
	ListTemplates(ctx context.Context) ([]whatsapp.ProviderTemplate, error)
	CreateTemplate(ctx context.Context, tmpl whatsapp.TemplateRequest) (*whatsapp.CreateTemplateResponse, error)
	DeleteTemplate(ctx context.Context, templateName string) error
	UploadMedia(ctx context.Context, file io.Reader, filename, mimeType string, progress whatsapp.ProgressFunc) (*whatsapp.MediaResponse, error)
}

// Notifier pushes events to connected dashboards
type Notifier interface {
	Broadcast(accountID, eventType string, data interface{})
}

// providerError maps Graph client failures onto a response
func providerError(c *gin.Context, err error) {
	var apiErr *whatsapp.APIError
	switch {
	case errors.Is(err, whatsapp.ErrNotConfigured):
		c.JSON(http.StatusBadRequest, gin.H{"error": "WhatsApp channel is not configured"})
	case errors.Is(err, whatsapp.ErrUnauthorized):
		c.JSON(http.StatusBadGateway, gin.H{"error": "WhatsApp access token was rejected"})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "WhatsApp API error", "status": apiErr.Status, "details": apiErr.Body})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
	c.Error(err)
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	c.Error(err)
}
