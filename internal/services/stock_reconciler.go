package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

const maxCASRetries = 3

// ReconcileRequest overwrites one product's on-hand quantity in one warehouse
type ReconcileRequest struct {
	TenantID     string
	ProductID    uuid.UUID
	WarehouseID  uuid.UUID
	Quantity     int
	Source       models.InventorySource
	ConnectionID *uuid.UUID
}

// ReconcileResult reports the stock after a reconcile
type ReconcileResult struct {
	Changed        bool
	QuantityBefore int
	QuantityAfter  int
	ProductStock   int
}

// StockReconciler keeps stock levels and the product's aggregated stock in step
type StockReconciler struct {
	db       *gorm.DB
	notifier Notifier
	logger   *logrus.Entry
	now      func() time.Time
}

// NewStockReconciler creates a reconciler
func NewStockReconciler(db *gorm.DB, notifier Notifier, logger *logrus.Entry) *StockReconciler {
	return &StockReconciler{
		db:       db,
		notifier: notifier,
		logger:   logger.WithField("component", "stock_reconciler"),
		now:      time.Now,
	}
}

// ResolveWarehouse picks the warehouse for a marketplace location: the
// connection's mapping, then its default, then the tenant default, then a
// newly created DEFAULT warehouse.
func (r *StockReconciler) ResolveWarehouse(ctx context.Context, tenantID string, cfg *models.SyncConfig, locationID string) (uuid.UUID, error) {
	repo := repository.NewInventoryRepository(r.db)

	if cfg != nil {
		if id, ok := cfg.WarehouseFor(locationID); ok {
			if _, err := repo.GetWarehouse(ctx, tenantID, id); err == nil {
				return id, nil
			} else if !errors.Is(err, apperrors.ErrNotFound) {
				return uuid.Nil, err
			}
			r.logger.WithFields(logrus.Fields{
				"tenantId":    tenantID,
				"warehouseId": id,
				"locationId":  locationID,
			}).Warn("Configured warehouse is missing or inactive, falling back to tenant default")
		}
	}

	warehouse, err := repo.GetDefaultWarehouse(ctx, tenantID)
	if err == nil {
		return warehouse.ID, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return uuid.Nil, err
	}

	warehouse, err = repo.EnsureDefaultWarehouse(ctx, tenantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create default warehouse: %w", err)
	}
	return warehouse.ID, nil
}

// OnHand returns a product's on-hand quantity in one warehouse, 0 when it
// has no stock level there yet
func (r *StockReconciler) OnHand(ctx context.Context, productID, warehouseID uuid.UUID) (int, error) {
	level, err := repository.NewInventoryRepository(r.db).GetStockLevel(ctx, productID, warehouseID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return level.QuantityOnHand, nil
}

// Reconcile overwrites the on-hand quantity and recomputes the product's
// stock as the sum over all its warehouses, in one transaction. Version
// conflicts restart the transaction.
func (r *StockReconciler) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	if req.Quantity < 0 {
		return nil, apperrors.New(apperrors.KindValidation, "reconcile_stock", "quantity cannot be negative: %d", req.Quantity)
	}
	if req.Source == "" {
		req.Source = models.SourceMarketplace
	}

	var result *ReconcileResult
	var err error
	for attempt := 0; attempt <= maxCASRetries; attempt++ {
		result, err = r.reconcileOnce(ctx, req)
		if !errors.Is(err, apperrors.ErrConcurrentModification) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if result.Changed {
		r.notifyLowStock(ctx, req.TenantID, req.ProductID)
	}
	return result, nil
}

func (r *StockReconciler) reconcileOnce(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	syncedAt := r.now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := repository.NewProductRepository(tx)
		inventory := repository.NewInventoryRepository(tx)

		product, err := products.GetByID(ctx, req.TenantID, req.ProductID)
		if err != nil {
			return err
		}

		level, err := inventory.GetStockLevel(ctx, req.ProductID, req.WarehouseID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			level = &models.StockLevel{
				TenantID:       req.TenantID,
				ProductID:      req.ProductID,
				WarehouseID:    req.WarehouseID,
				QuantityOnHand: req.Quantity,
				LastSyncedAt:   &syncedAt,
			}
			if err := inventory.CreateStockLevel(ctx, level); err != nil {
				return err
			}
			result.Changed = req.Quantity != 0
		case err != nil:
			return err
		default:
			result.QuantityBefore = level.QuantityOnHand
			if level.QuantityOnHand != req.Quantity {
				if err := inventory.SetOnHand(ctx, level, req.Quantity, syncedAt); err != nil {
					return err
				}
				result.Changed = true
			}
		}
		result.QuantityAfter = req.Quantity

		if result.Changed {
			entry := models.NewInventoryLedgerEntry(level, result.QuantityBefore, req.Source, req.ConnectionID)
			if err := inventory.CreateLedgerEntry(ctx, entry); err != nil {
				return err
			}
		}

		total, err := inventory.SumOnHand(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if product.StockQuantity != total {
			if err := products.SetStockQuantity(ctx, product, total); err != nil {
				return err
			}
			result.Changed = true
		}
		result.ProductStock = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *StockReconciler) notifyLowStock(ctx context.Context, tenantID string, productID uuid.UUID) {
	if r.notifier == nil {
		return
	}
	levels, err := repository.NewInventoryRepository(r.db).ListStockLevels(ctx, productID)
	if err != nil {
		r.logger.WithError(err).WithField("productId", productID).Warn("Failed to load stock levels for low stock check")
		return
	}
	for _, level := range levels {
		if !level.IsLowStock() {
			continue
		}
		err := r.notifier.Notify(ctx, tenantID, EventLowStock, map[string]interface{}{
			"productId":         productID.String(),
			"warehouseId":       level.WarehouseID.String(),
			"quantityOnHand":    level.QuantityOnHand,
			"quantityAvailable": level.QuantityAvailable(),
			"reorderPoint":      level.ReorderPoint,
		})
		if err != nil {
			r.logger.WithError(err).WithField("productId", productID).Warn("Failed to send low stock notification")
		}
	}
}
