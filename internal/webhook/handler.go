package webhook

import (
	"context"
	"net/http"

	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"
	"campaign-dashboard/internal/ws"
	pkgmodels "campaign-dashboard/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier receives the events the webhook produces
type Notifier interface {
	Broadcast(accountID, eventType string, data interface{})
}

// InboundProcessor reacts to inbound messages, e.g. opt-outs and keyword replies
type InboundProcessor interface {
	Process(ctx context.Context, accountID, from, content string) error
}

type Handler struct {
	Config *config.Config
	// Automation is optional
	Automation InboundProcessor

	db     *gorm.DB
	notify Notifier
	log    logrus.FieldLogger
}

func NewHandler(cfg *config.Config, db *gorm.DB, notify Notifier, log logrus.FieldLogger) *Handler {
	return &Handler{Config: cfg, db: db, notify: notify, log: log}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || h.Config.VerifyToken == "" || token != h.Config.VerifyToken {
		h.log.WithField("mode", mode).Warn("webhook verification rejected")
		c.Status(http.StatusForbidden)
		return
	}
	h.log.Info("webhook verified")
	c.String(http.StatusOK, challenge)
}

// HandleEvent applies delivery statuses, inbound messages and template
// review results. It answers 200 for anything it could parse so the
// provider does not redeliver.
func (h *Handler) HandleEvent(c *gin.Context) {
	var payload pkgmodels.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.WithError(err).Warn("webhook payload rejected")
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			switch change.Field {
			case pkgmodels.FieldTemplateStatusUpdate:
				h.applyTemplateStatus(change.Value)
			case pkgmodels.FieldMessages, "":
				for _, st := range change.Value.Statuses {
					h.applyStatus(st)
				}
				for _, msg := range change.Value.Messages {
					h.recordInbound(c.Request.Context(), msg)
				}
			default:
				h.log.WithField("field", change.Field).Debug("webhook field ignored")
			}
		}
	}

	c.Status(http.StatusOK)
}

type statusEvent struct {
	ProviderID string `json:"provider_id"`
	CampaignID string `json:"campaign_id,omitempty"`
	Recipient  string `json:"recipient"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) applyStatus(st pkgmodels.Status) {
	log := h.log.WithFields(logrus.Fields{"provider_id": st.ID, "status": st.Status})

	var msg models.Message
	if err := h.db.Where("provider_id = ?", st.ID).First(&msg).Error; err != nil {
		log.WithError(err).Debug("status for unknown message")
		return
	}

	updates := map[string]interface{}{"status": st.Status}
	if len(st.Errors) > 0 {
		updates["error"] = st.Errors[0].Title
		msg.Error = st.Errors[0].Title
	}
	if err := h.db.Model(&msg).Updates(updates).Error; err != nil {
		log.WithError(err).Error("failed to store message status")
		return
	}

	h.notify.Broadcast(msg.AccountID, ws.EventMessageStatus, statusEvent{
		ProviderID: st.ID,
		CampaignID: msg.CampaignID,
		Recipient:  msg.Recipient,
		Status:     st.Status,
		Error:      msg.Error,
	})
}

func (h *Handler) recordInbound(ctx context.Context, in pkgmodels.InboundMessage) {
	from := templateutil.NormalizePhone(in.From)

	// replies belong to the account that last messaged the sender
	var last models.Message
	accountID := ""
	if err := h.db.Where("recipient = ? AND status <> ?", from, "received").Order("id desc").First(&last).Error; err == nil {
		accountID = last.AccountID
	}

	msg := models.Message{
		AccountID:  accountID,
		ProviderID: in.ID,
		Channel:    "whatsapp",
		Recipient:  from,
		Content:    in.Content(),
		Status:     "received",
	}
	if err := h.db.Create(&msg).Error; err != nil {
		h.log.WithError(err).WithField("from", from).Error("failed to store inbound message")
		return
	}
	h.notify.Broadcast(accountID, ws.EventInboundMessage, msg)

	if h.Automation != nil && msg.Content != "" {
		if err := h.Automation.Process(ctx, accountID, from, msg.Content); err != nil {
			h.log.WithError(err).WithField("from", from).Warn("inbound automation failed")
		}
	}
}

type templateEvent struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handler) applyTemplateStatus(v pkgmodels.Value) {
	log := h.log.WithFields(logrus.Fields{"template": v.MessageTemplateName, "event": v.Event})

	q := h.db.Model(&models.Template{}).Where("name = ?", v.MessageTemplateName)
	if v.MessageTemplateLanguage != "" {
		q = q.Where("language = ?", v.MessageTemplateLanguage)
	}
	reason := v.Reason
	if reason == "NONE" {
		reason = ""
	}
	res := q.Updates(map[string]interface{}{"status": v.Event, "reason": reason})
	if res.Error != nil {
		log.WithError(res.Error).Error("failed to store template status")
		return
	}
	log.WithField("rows", res.RowsAffected).Info("template status updated")

	h.notify.Broadcast("", ws.EventTemplateStatus, templateEvent{
		Name:     v.MessageTemplateName,
		Language: v.MessageTemplateLanguage,
		Status:   v.Event,
		Reason:   reason,
	})
}
