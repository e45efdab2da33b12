package database

import (
	"fmt"
	"strings"

	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the schema
func Open(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, errors.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	level := logger.Warn
	if cfg.LogLevel == "debug" {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", cfg.DBDriver)
	}
	if cfg.DBDriver != "postgres" {
		if err := singleConn(db); err != nil {
			return nil, err
		}
	}
	log.WithField("driver", cfg.DBDriver).Info("database connected")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database migration completed")

	return db, nil
}

// OpenMemory opens a private in-memory sqlite database, used by tests
func OpenMemory(name string) (*gorm.DB, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := singleConn(db); err != nil {
		return nil, err
	}
	return db, Migrate(db)
}

// sqlite allows one writer; background jobs queue on the pool instead of
// failing with a locked database.
func singleConn(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "sqlite pool")
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Contact{},
		&models.Template{},
		&models.Campaign{},
		&models.Message{},
		&models.Media{},
		&models.ContactImport{},
		&models.ChatWidget{},
		&models.SystemSetting{},
		&models.AutomationRule{},
	)
	return errors.Wrap(err, "auto-migrate")
}

// Setting keys editable through the channels API
const (
	SettingVerifyToken   = "VERIFY_TOKEN"
	SettingWhatsAppToken = "WHATSAPP_TOKEN"
	SettingPhoneNumberID = "PHONE_NUMBER_ID"
	SettingWABAID        = "WABA_ID"
	SettingSMSSenderID   = "SMS_SENDER_ID"
)

// ConfigSettings binds setting keys to the config fields they override
func ConfigSettings(cfg *config.Config) map[string]*string {
	return map[string]*string{
		SettingVerifyToken:   &cfg.VerifyToken,
		SettingWhatsAppToken: &cfg.WhatsAppToken,
		SettingPhoneNumberID: &cfg.PhoneNumberID,
		SettingWABAID:        &cfg.WhatsAppBusinessAccountID,
		SettingSMSSenderID:   &cfg.SMSSenderID,
	}
}

// SyncConfig lets stored settings override env values, and seeds the table
// with env values that are not stored yet.
func SyncConfig(db *gorm.DB, cfg *config.Config, log logrus.FieldLogger) error {
	for key, value := range ConfigSettings(cfg) {
		var setting models.SystemSetting
		err := db.Where(&models.SystemSetting{Key: key}).First(&setting).Error
		switch {
		case err == nil:
			if setting.Value != "" {
				*value = setting.Value
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if *value == "" {
				continue
			}
			if err := db.Create(&models.SystemSetting{Key: key, Value: *value}).Error; err != nil {
				return errors.Wrapf(err, "seed setting %s", key)
			}
		default:
			return errors.Wrapf(err, "load setting %s", key)
		}
	}
	log.Info("system settings synchronized from database")
	return nil
}
