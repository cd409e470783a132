package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
)

// InventoryRepository handles warehouses, stock levels and the inventory ledger
type InventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// GetWarehouse retrieves an active warehouse of the tenant
func (r *InventoryRepository) GetWarehouse(ctx context.Context, tenantID string, id uuid.UUID) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		First(&warehouse, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &warehouse, nil
}

// GetDefaultWarehouse retrieves the tenant's default active warehouse
func (r *InventoryRepository) GetDefaultWarehouse(ctx context.Context, tenantID string) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_default = ? AND is_active = ?", tenantID, true, true).
		First(&warehouse).Error
	if err != nil {
		return nil, translate(err)
	}
	return &warehouse, nil
}

// EnsureDefaultWarehouse returns the tenant's DEFAULT warehouse, creating it
// if missing. Concurrent creators converge on the same row.
func (r *InventoryRepository) EnsureDefaultWarehouse(ctx context.Context, tenantID string) (*models.Warehouse, error) {
	warehouse := &models.Warehouse{
		TenantID:  tenantID,
		Code:      models.DefaultWarehouseCode,
		Name:      "Default Warehouse",
		IsDefault: true,
		IsActive:  true,
	}
	err := r.db.WithContext(ctx).Create(warehouse).Error
	if err == nil {
		return warehouse, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	var existing models.Warehouse
	err = r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, models.DefaultWarehouseCode).
		First(&existing).Error
	if err != nil {
		return nil, translate(err)
	}
	return &existing, nil
}

// GetStockLevel retrieves the stock level of a product in a warehouse
func (r *InventoryRepository) GetStockLevel(ctx context.Context, productID, warehouseID uuid.UUID) (*models.StockLevel, error) {
	var level models.StockLevel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&level).Error
	if err != nil {
		return nil, translate(err)
	}
	return &level, nil
}

// CreateStockLevel creates a stock level. A concurrent insert for the same
// product and warehouse fails with ErrConcurrentModification.
func (r *InventoryRepository) CreateStockLevel(ctx context.Context, level *models.StockLevel) error {
	err := r.db.WithContext(ctx).Create(level).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrConcurrentModification
	}
	return err
}

// SetOnHand overwrites quantity_on_hand if the level's version is unchanged
func (r *InventoryRepository) SetOnHand(ctx context.Context, level *models.StockLevel, quantity int, syncedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockLevel{}).
		Where("id = ? AND version = ?", level.ID, level.Version).
		Updates(map[string]interface{}{
			"quantity_on_hand": quantity,
			"last_synced_at":   syncedAt,
			"version":          level.Version + 1,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConcurrentModification
	}
	level.QuantityOnHand = quantity
	level.LastSyncedAt = &syncedAt
	level.Version++
	return nil
}

// SumOnHand returns the total on-hand quantity of a product across warehouses
func (r *InventoryRepository) SumOnHand(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.StockLevel{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity_on_hand), 0)").
		Scan(&total).Error
	return int(total), err
}

// ListStockLevels retrieves every stock level of a product
func (r *InventoryRepository) ListStockLevels(ctx context.Context, productID uuid.UUID) ([]models.StockLevel, error) {
	var levels []models.StockLevel
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&levels).Error
	return levels, err
}

// CreateLedgerEntry appends to the inventory ledger
func (r *InventoryRepository) CreateLedgerEntry(ctx context.Context, entry *models.InventoryLedger) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListLedger retrieves a product's ledger, newest first
func (r *InventoryRepository) ListLedger(ctx context.Context, productID uuid.UUID, opts ListOptions) ([]models.InventoryLedger, error) {
	var entries []models.InventoryLedger
	err := opts.apply(r.db.WithContext(ctx).Where("product_id = ?", productID)).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
