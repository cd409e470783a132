package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace-sync-service/internal/models"
)

// SyncRepository handles sync configs and sync run history
type SyncRepository struct {
	db *gorm.DB
}

// NewSyncRepository creates a new sync repository
func NewSyncRepository(db *gorm.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

// GetConfig retrieves the sync config of a connection
func (r *SyncRepository) GetConfig(ctx context.Context, connectionID uuid.UUID) (*models.SyncConfig, error) {
	var cfg models.SyncConfig
	err := r.db.WithContext(ctx).First(&cfg, "connection_id = ?", connectionID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// SaveConfig inserts or replaces the sync config of a connection
func (r *SyncRepository) SaveConfig(ctx context.Context, cfg *models.SyncConfig) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "connection_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sync_enabled",
			"stock_direction",
			"price_direction",
			"product_data_direction",
			"create_products",
			"log_conflicts",
			"default_warehouse_id",
			"warehouse_mappings",
			"updated_at",
		}),
	}).Create(cfg).Error
}

// CreateRun creates a new sync run
func (r *SyncRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// FinishRun stores the final counters and status of a run
func (r *SyncRepository) FinishRun(ctx context.Context, run *models.SyncRun) error {
	if run.CompletedAt == nil {
		now := time.Now()
		run.CompletedAt = &now
	}
	return r.db.WithContext(ctx).Save(run).Error
}

// GetRun retrieves a sync run by ID
func (r *SyncRepository) GetRun(ctx context.Context, tenantID string, id uuid.UUID) (*models.SyncRun, error) {
	var run models.SyncRun
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&run, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &run, nil
}

// RunFilter narrows a sync run listing
type RunFilter struct {
	ConnectionID *uuid.UUID
	Status       models.SyncRunStatus
	ListOptions
}

// ListRuns retrieves a tenant's sync runs, newest first
func (r *SyncRepository) ListRuns(ctx context.Context, tenantID string, filter RunFilter) ([]models.SyncRun, int64, error) {
	var runs []models.SyncRun
	var total int64

	query := r.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("tenant_id = ?", tenantID)
	if filter.ConnectionID != nil {
		query = query.Where("connection_id = ?", *filter.ConnectionID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := filter.apply(query).Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}
