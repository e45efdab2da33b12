package main

import (
	"flag"

	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/database"
	"campaign-dashboard/internal/logging"
)

// Copies a sqlite database into the configured postgres database.
func main() {
	source := flag.String("from", "", "sqlite file to copy (defaults to DB_PATH)")
	flag.Parse()

	cfg := config.LoadConfig()
	log := logging.New(cfg)

	srcCfg := *cfg
	srcCfg.DBDriver = "sqlite"
	if *source != "" {
		srcCfg.DBPath = *source
	}
	src, err := database.Open(&srcCfg, log.WithField("db", "source"))
	if err != nil {
		log.WithError(err).Fatal("failed to open source database")
	}

	dstCfg := *cfg
	dstCfg.DBDriver = "postgres"
	dst, err := database.Open(&dstCfg, log.WithField("db", "destination"))
	if err != nil {
		log.WithError(err).Fatal("failed to open destination database")
	}

	log.WithField("from", srcCfg.DBPath).Info("starting data migration")
	if err := database.CopyTables(src, dst, log); err != nil {
		log.WithError(err).Fatal("data migration failed")
	}
	if err := database.SyncSequences(dst, log); err != nil {
		log.WithError(err).Fatal("sequence sync failed")
	}
	log.Info("migration completed")
}
