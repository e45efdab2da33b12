package api

import (
	"net/http"

	"campaign-dashboard/internal/auth"
	"campaign-dashboard/internal/middleware"
	"campaign-dashboard/internal/permissions"
	"campaign-dashboard/internal/webhook"

	"github.com/gin-gonic/gin"
)

// Hub is the websocket side of the Notifier
type Hub interface {
	Notifier
	ServeWs(w http.ResponseWriter, r *http.Request, accountID string)
}

type Handlers struct {
	Templates  *TemplateHandler
	Contacts   *ContactHandler
	Campaigns  *CampaignHandler
	Channels   *ChannelHandler
	Widget     *WidgetHandler
	Dashboard  *DashboardHandler
	Automation *AutomationHandler
	Webhook    *webhook.Handler
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Register mounts every route on r
func Register(r *gin.Engine, h Handlers, authSvc *auth.Service, hub Hub) {
	r.Use(cors())

	r.GET("/webhook", h.Webhook.VerifyWebhook)
	r.POST("/webhook", h.Webhook.HandleEvent)

	// browsers cannot set headers on websocket upgrades
	r.GET("/ws", func(c *gin.Context) {
		principal, err := authSvc.Validate(c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		hub.ServeWs(c.Writer, c.Request, principal.AccountID)
	})

	can := middleware.Require
	apiGroup := r.Group("/api", middleware.Auth(authSvc))
	{
		apiGroup.GET("/overview", h.Dashboard.GetOverview)
		apiGroup.GET("/messages", h.Dashboard.GetMessages)
		apiGroup.POST("/send", can(permissions.CampaignsWrite), h.Dashboard.SendMessage)

		templates := apiGroup.Group("/templates", can(permissions.TemplatesRead))
		{
			templates.GET("", h.Templates.GetTemplates)
			templates.GET("/variables", h.Templates.GetVariables)
			templates.GET("/:id/editor", h.Templates.GetEditorState)
			templates.POST("/serialize", h.Templates.Serialize)
			templates.POST("/diff", h.Templates.Diff)
			templates.POST("/sync", can(permissions.TemplatesWrite), h.Templates.SyncTemplates)
			templates.POST("", can(permissions.TemplatesWrite), h.Templates.SubmitTemplate)
			templates.DELETE("", can(permissions.TemplatesWrite), h.Templates.DeleteTemplate)
			templates.POST("/media", can(permissions.TemplatesWrite), h.Templates.UploadMedia)
		}

		contacts := apiGroup.Group("/contacts", can(permissions.ContactsRead))
		{
			contacts.GET("", h.Contacts.GetContacts)
			contacts.GET("/export", h.Contacts.ExportContacts)
			contacts.GET("/imports/:id", h.Contacts.GetImport)
			contacts.POST("", can(permissions.ContactsWrite), h.Contacts.CreateContact)
			contacts.POST("/import", can(permissions.ContactsWrite), h.Contacts.ImportContacts)
			contacts.PUT("/:id", can(permissions.ContactsWrite), h.Contacts.UpdateContact)
			contacts.DELETE("/:id", can(permissions.ContactsWrite), h.Contacts.DeleteContact)
		}

		campaigns := apiGroup.Group("/campaigns", can(permissions.CampaignsRead))
		{
			campaigns.GET("", h.Campaigns.GetCampaigns)
			campaigns.GET("/:id", h.Campaigns.GetCampaign)
			campaigns.POST("", can(permissions.CampaignsWrite), h.Campaigns.CreateCampaign)
		}

		channels := apiGroup.Group("/channels", can(permissions.ChannelsRead))
		{
			channels.GET("", h.Channels.GetChannels)
			channels.PUT("/:key", can(permissions.ChannelsWrite), h.Channels.UpdateChannel)
		}

		rules := apiGroup.Group("/automation/rules", can(permissions.CampaignsRead))
		{
			rules.GET("", h.Automation.GetRules)
			rules.POST("", can(permissions.CampaignsWrite), h.Automation.CreateRule)
			rules.PUT("/:id", can(permissions.CampaignsWrite), h.Automation.UpdateRule)
			rules.DELETE("/:id", can(permissions.CampaignsWrite), h.Automation.DeleteRule)
			rules.POST("/:id/toggle", can(permissions.CampaignsWrite), h.Automation.ToggleRule)
		}

		widgetGroup := apiGroup.Group("/widget", can(permissions.WidgetRead))
		{
			widgetGroup.GET("", h.Widget.GetWidget)
			widgetGroup.GET("/snippet", h.Widget.GetSnippet)
			widgetGroup.PUT("", can(permissions.WidgetWrite), h.Widget.UpdateWidget)
		}
	}
}
