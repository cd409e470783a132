// Package database opens the service's gorm connection and migrates its schema.
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketplace-sync-service/internal/config"
	"marketplace-sync-service/internal/models"
)

// Open connects to PostgreSQL
func Open(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.IsProduction() {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Models lists every table owned by the service
func Models() []interface{} {
	return []interface{}{
		&models.MarketplaceConnection{},
		&models.SyncConfig{},
		&models.SyncRun{},
		&models.Product{},
		&models.ProductMarketplaceReference{},
		&models.Warehouse{},
		&models.StockLevel{},
		&models.InventoryLedger{},
		&models.Order{},
		&models.OrderLine{},
		&models.Conflict{},
		&models.MarketplaceWebhookEvent{},
		&models.ResourceEventVersion{},
	}
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Ping checks the database is reachable
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
