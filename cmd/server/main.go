package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"campaign-dashboard/internal/api"
	"campaign-dashboard/internal/auth"
	"campaign-dashboard/internal/automation"
	"campaign-dashboard/internal/campaign"
	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/contactsync"
	"campaign-dashboard/internal/database"
	"campaign-dashboard/internal/logging"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/sms"
	"campaign-dashboard/internal/webhook"
	"campaign-dashboard/internal/whatsapp"
	"campaign-dashboard/internal/ws"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.LoadConfig()
	log := logging.New(cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	if err := database.SyncConfig(db, cfg, log); err != nil {
		log.WithError(err).Fatal("failed to load channel settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	whatsappClient := whatsapp.NewClient(cfg, log)

	dispatcherOpts := []campaign.DispatcherOption{
		campaign.SetWorkerCount(cfg.CampaignWorkers),
		campaign.SetNotifier(func(c models.Campaign) {
			hub.Broadcast(c.AccountID, ws.EventCampaignStatus, c)
		}),
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
	if err != nil {
		log.WithError(err).Warn("AWS session unavailable, SMS campaigns disabled")
	} else {
		dispatcherOpts = append(dispatcherOpts, campaign.SetSMSTransport(
			sms.NewSNSTransport(sess, log, sms.SetSenderID(cfg.SMSSenderID), sms.SetTransactional()),
		))
	}
	dispatcher := campaign.NewDispatcher(db, whatsappClient, log, dispatcherOpts...)

	webhookHandler := webhook.NewHandler(cfg, db, hub, log)
	webhookHandler.Automation = automation.NewEngine(db, whatsappClient, log)

	poller := contactsync.Poller{Interval: cfg.SyncInterval, MaxStalls: cfg.SyncMaxStalls}
	handlers := api.Handlers{
		Templates:  api.NewTemplateHandler(db, whatsappClient, hub, log),
		Contacts:   api.NewContactHandler(ctx, db, contactsync.NewImporter(db, log), poller, hub, log),
		Campaigns:  api.NewCampaignHandler(db, dispatcher, log),
		Channels:   api.NewChannelHandler(cfg, db, log),
		Widget:     api.NewWidgetHandler(db),
		Dashboard:  api.NewDashboardHandler(db, whatsappClient, log),
		Automation: api.NewAutomationHandler(db),
		Webhook:    webhookHandler,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log))
	api.Register(r, handlers, auth.NewService(cfg.JWTSecret, cfg.JWTAccessExpiry), hub)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	dispatcher.Shutdown()
}
