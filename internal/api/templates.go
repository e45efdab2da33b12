package api

import (
	"encoding/json"
	"net/http"

	"campaign-dashboard/internal/editor"
	"campaign-dashboard/internal/middleware"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"
	"campaign-dashboard/internal/whatsapp"
	"campaign-dashboard/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TemplateHandler struct {
	db       *gorm.DB
	provider WhatsAppProvider
	notify   Notifier
	log      logrus.FieldLogger
}

func NewTemplateHandler(db *gorm.DB, provider WhatsAppProvider, notify Notifier, log logrus.FieldLogger) *TemplateHandler {
	return &TemplateHandler{db: db, provider: provider, notify: notify, log: log}
}

// GetTemplates returns the account's templates from the local store
func (h *TemplateHandler) GetTemplates(c *gin.Context) {
	var templates []models.Template
	if err := h.db.Where("account_id = ?", middleware.AccountID(c)).Order("name, language").Find(&templates).Error; err != nil {
		internalError(c, err)
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	c.JSON(http.StatusOK, templates)
}

// SyncTemplates fetches the provider's templates and stores them locally.
// Editor state of known templates is kept.
func (h *TemplateHandler) SyncTemplates(c *gin.Context) {
	accountID := middleware.AccountID(c)

	remote, err := h.provider.ListTemplates(c.Request.Context())
	if err != nil {
		providerError(c, err)
		return
	}

	synced := 0
	for _, t := range remote {
		components := "[]"
		if len(t.Components) > 0 {
			components = string(t.Components)
		}
		row := models.Template{
			ID:         t.ID,
			AccountID:  accountID,
			Name:       t.Name,
			Language:   t.Language,
			Category:   t.Category,
			Status:     t.Status,
			Components: components,
		}
		err := h.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}, {Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "language", "category", "status", "components", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			h.log.WithError(err).WithField("template", t.Name).Error("failed to store template")
			continue
		}
		synced++
	}

	c.JSON(http.StatusOK, gin.H{"status": "Templates synced", "count": synced})
}

// GetEditorState returns the editable form of a stored template
func (h *TemplateHandler) GetEditorState(c *gin.Context) {
	var row models.Template
	err := h.db.Where("id = ? AND account_id = ?", c.Param("id"), middleware.AccountID(c)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	if row.Editor != "" {
		var t editor.Template
		if err := json.Unmarshal([]byte(row.Editor), &t); err == nil {
			c.JSON(http.StatusOK, t)
			return
		}
		h.log.WithField("template", row.ID).Warn("stored editor state unreadable, rebuilding from components")
	}

	t, err := editor.FromProvider(row.Name, row.Language, row.Category, json.RawMessage(row.Components))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type SerializeRequest struct {
	Component     templateutil.ComponentType `json:"component" binding:"required"`
	Text          string                     `json:"text"`
	Mappings      templateutil.Mapping       `json:"mappings"`
	Substitutions []string                   `json:"substitutions"`
}

// Serialize renumbers the placeholders of an edited text. A 422 means the
// edit must be discarded and the previous state kept.
func (h *TemplateHandler) Serialize(c *gin.Context) {
	var req SerializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := templateutil.Serialize(req.Component, req.Text, req.Mappings, req.Substitutions)
	if err != nil {
		h.log.WithError(err).WithField("component", req.Component).Warn("serialize rejected")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

type DiffRequest struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// Diff reports what changed between two editor states
func (h *TemplateHandler) Diff(c *gin.Context) {
	var req DiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Before == nil {
		req.Before = map[string]any{}
	}
	if req.After == nil {
		req.After = map[string]any{}
	}

	diff := templateutil.FindDifferences(req.Before, req.After)
	c.JSON(http.StatusOK, gin.H{"has_changes": len(diff) > 0, "differences": diff})
}

// SubmitTemplate validates an editor template and submits it for review
func (h *TemplateHandler) SubmitTemplate(c *gin.Context) {
	var t editor.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := editor.Validate(t); err != nil {
		var verr *editor.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Template is incomplete", "problems": verr.Problems})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	req := t.ProviderRequest()
	resp, err := h.provider.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		providerError(c, err)
		return
	}

	components, err := json.Marshal(req.Components)
	if err != nil {
		internalError(c, err)
		return
	}
	state, err := json.Marshal(t)
	if err != nil {
		internalError(c, err)
		return
	}

	category := resp.Category
	if category == "" {
		category = t.Category
	}
	row := models.Template{
		ID:         resp.ID,
		AccountID:  middleware.AccountID(c),
		Name:       t.Name,
		Language:   t.Language,
		Category:   category,
		Status:     resp.Status,
		Components: string(components),
		Editor:     string(state),
	}
	if err := h.db.Save(&row).Error; err != nil {
		internalError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{"template": t.Name, "id": resp.ID}).Info("template submitted")
	c.JSON(http.StatusCreated, row)
}

// DeleteTemplate removes a template by name from the provider and locally
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Template name required (query param 'name')"})
		return
	}

	if err := h.provider.DeleteTemplate(c.Request.Context(), name); err != nil {
		providerError(c, err)
		return
	}
	if err := h.db.Where("account_id = ? AND name = ?", middleware.AccountID(c), name).Delete(&models.Template{}).Error; err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Template deleted"})
}

type uploadProgress struct {
	Filename string `json:"filename"`
	Sent     int64  `json:"sent"`
	Total    int64  `json:"total"`
}

// UploadMedia uploads a header sample and returns its handle
func (h *TemplateHandler) UploadMedia(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}
	defer file.Close()

	if header.Size > whatsapp.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
		return
	}

	accountID := middleware.AccountID(c)
	mimeType := header.Header.Get("Content-Type")
	lastPercent := int64(-1)
	progress := func(sent, total int64) {
		if total <= 0 {
			return
		}
		// one event per ten percent
		if p := sent * 10 / total; p != lastPercent {
			lastPercent = p
			h.notify.Broadcast(accountID, ws.EventUploadProgress, uploadProgress{Filename: header.Filename, Sent: sent, Total: total})
		}
	}

	resp, err := h.provider.UploadMedia(c.Request.Context(), file, header.Filename, mimeType, progress)
	if err != nil {
		providerError(c, err)
		return
	}

	media := models.Media{
		AccountID: accountID,
		MediaID:   resp.ID,
		Filename:  header.Filename,
		MimeType:  mimeType,
		FileSize:  header.Size,
	}
	if err := h.db.Create(&media).Error; err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"handle": resp.ID, "filename": header.Filename})
}

// GetVariables lists the catalogue placeholders can be mapped to
func (h *TemplateHandler) GetVariables(c *gin.Context) {
	c.JSON(http.StatusOK, templateutil.Variables())
}
