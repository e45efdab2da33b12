package main

import (
	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/database"
	"campaign-dashboard/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.New(cfg)

	if cfg.DBDriver != "postgres" {
		log.WithField("driver", cfg.DBDriver).Fatal("sequences only exist on postgres")
	}
	db, err := database.Open(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}

	log.Info("syncing postgres sequences")
	if err := database.SyncSequences(db, log); err != nil {
		log.WithError(err).Fatal("sequence sync failed")
	}
	log.Info("done")
}
