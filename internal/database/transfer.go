package database

import (
	"campaign-dashboard/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SerialTables have auto-increment ids and need their postgres sequence
// moved past copied rows
var SerialTables = []string{"contacts", "messages", "media", "automation_rules"}

const copyBatchSize = 500

// CopyTables copies every row from src into dst. Rows already present in
// dst are left alone, so a copy can be rerun after a partial failure.
func CopyTables(src, dst *gorm.DB, log logrus.FieldLogger) error {
	copyTable := func(name string, rows interface{}) error {
		if err := src.Find(rows).Error; err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		err := dst.Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, copyBatchSize).Error
		})
		if err != nil {
			return errors.Wrapf(err, "write %s", name)
		}
		log.WithField("table", name).Info("table copied")
		return nil
	}

	var (
		contacts  []models.Contact
		templates []models.Template
		campaigns []models.Campaign
		messages  []models.Message
		media     []models.Media
		imports   []models.ContactImport
		widgets   []models.ChatWidget
		settings  []models.SystemSetting
		rules     []models.AutomationRule
	)
	for _, t := range []struct {
		name string
		rows interface{}
	}{
		{"contacts", &contacts},
		{"templates", &templates},
		{"campaigns", &campaigns},
		{"messages", &messages},
		{"media", &media},
		{"contact_imports", &imports},
		{"chat_widgets", &widgets},
		{"system_settings", &settings},
		{"automation_rules", &rules},
	} {
		if err := copyTable(t.name, t.rows); err != nil {
			return err
		}
	}
	return nil
}

// SyncSequences resets the postgres id sequences to follow the largest
// stored id
func SyncSequences(db *gorm.DB, log logrus.FieldLogger) error {
	for _, table := range SerialTables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			return errors.Wrapf(err, "sync sequence of %s", table)
		}
		log.WithField("table", table).Info("sequence synced")
	}
	return nil
}
