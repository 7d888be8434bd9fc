package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"realtorvoice/internal/config"
	"realtorvoice/internal/models"
	"realtorvoice/internal/utils"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Queries the background worker issues every tick; kept out of the SQL log
var pollingQueries = []string{
	`SELECT * FROM "reminders" WHERE status = 'pending' AND scheduled_for <=`,
	`SELECT * FROM "outbound_emails" WHERE status = 'queued'`,
}

const (
	maxRetries = 5
	retryDelay = 5 * time.Second
)

// Open connects to postgres, retrying while the database comes up
func Open(cfg config.Config, zl *zap.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:                 newGormLogger(cfg),
		PrepareStmt:            true,
		SkipDefaultTransaction: false,
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), gormConfig)
		if err == nil {
			break
		}
		zl.Warn("database connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Migrate creates or updates every table the backend owns
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.CredentialRecord{},
		&models.Reminder{},
		&models.ReminderRule{},
		&models.Notification{},
		&models.OutboundEmail{},
		&models.SavedSearch{},
		&models.Payment{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func newGormLogger(cfg config.Config) logger.Interface {
	level := logger.Info
	if cfg.IsProduction() {
		level = logger.Warn
	}
	base := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags|log.Lshortfile),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  !cfg.IsProduction(),
		},
	)
	return utils.NewCustomGormLogger(base, pollingQueries...)
}
