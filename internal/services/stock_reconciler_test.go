package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

func seedProduct(t *testing.T, f *fixture, tenantID, sku string) *models.Product {
	t.Helper()
	product := &models.Product{TenantID: tenantID, SKU: sku, Name: "Widget " + sku}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func seedWarehouse(t *testing.T, f *fixture, tenantID, code string) *models.Warehouse {
	t.Helper()
	warehouse := &models.Warehouse{TenantID: tenantID, Code: code, Name: code, IsActive: true}
	require.NoError(t, f.db.Create(warehouse).Error)
	return warehouse
}

func TestReconcile_SumsAcrossWarehouses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := seedProduct(t, f, "tenant-1", "PROD-001")
	east := seedWarehouse(t, f, "tenant-1", "EAST")
	west := seedWarehouse(t, f, "tenant-1", "WEST")

	result, err := f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-1", ProductID: product.ID, WarehouseID: east.ID, Quantity: 10})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 10, result.ProductStock)

	result, err = f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-1", ProductID: product.ID, WarehouseID: west.ID, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 15, result.ProductStock)

	result, err = f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-1", ProductID: product.ID, WarehouseID: east.ID, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 10, result.QuantityBefore)
	assert.Equal(t, 9, result.ProductStock)

	stored, err := f.products.GetByID(ctx, "tenant-1", product.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.StockQuantity)

	ledger, err := f.inventory.ListLedger(ctx, product.ID, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	var eastChange *models.InventoryLedger
	for i := range ledger {
		if ledger[i].WarehouseID == east.ID && ledger[i].QuantityBefore == 10 {
			eastChange = &ledger[i]
		}
	}
	require.NotNil(t, eastChange)
	assert.Equal(t, -6, eastChange.QuantityChange)
	assert.Equal(t, models.SourceMarketplace, eastChange.Source)

	// same quantity again writes nothing
	result, err = f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-1", ProductID: product.ID, WarehouseID: east.ID, Quantity: 4})
	require.NoError(t, err)
	assert.False(t, result.Changed)
	ledger, err = f.inventory.ListLedger(ctx, product.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, ledger, 3)
}

func TestReconcile_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := seedProduct(t, f, "tenant-1", "PROD-001")
	warehouse := seedWarehouse(t, f, "tenant-1", "EAST")

	_, err := f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-1", ProductID: product.ID, WarehouseID: warehouse.ID, Quantity: -1})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-2", ProductID: product.ID, WarehouseID: warehouse.ID, Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReconcile_NotifiesLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := seedProduct(t, f, "tenant-1", "PROD-001")
	warehouse := seedWarehouse(t, f, "tenant-1", "EAST")

	_, err := f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-1", ProductID: product.ID, WarehouseID: warehouse.ID, Quantity: 20})
	require.NoError(t, err)
	assert.Equal(t, 0, f.notifier.count(EventLowStock))

	require.NoError(t, f.db.Model(&models.StockLevel{}).
		Where("product_id = ?", product.ID).
		Update("reorder_point", 5).Error)

	_, err = f.reconciler.Reconcile(ctx, ReconcileRequest{TenantID: "tenant-1", ProductID: product.ID, WarehouseID: warehouse.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count(EventLowStock))
}

func TestResolveWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mapped := seedWarehouse(t, f, "tenant-1", "EAST")
	cfg := models.DefaultSyncConfig("tenant-1", uuid.New())
	cfg.WarehouseMappings = models.JSONB{"loc-1": mapped.ID.String(), "loc-gone": uuid.NewString()}

	id, err := f.reconciler.ResolveWarehouse(ctx, "tenant-1", cfg, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, mapped.ID, id)

	// unmapped and dangling locations land in the tenant default
	fallback, err := f.reconciler.ResolveWarehouse(ctx, "tenant-1", cfg, "loc-2")
	require.NoError(t, err)
	assert.NotEqual(t, mapped.ID, fallback)

	dangling, err := f.reconciler.ResolveWarehouse(ctx, "tenant-1", cfg, "loc-gone")
	require.NoError(t, err)
	assert.Equal(t, fallback, dangling)

	warehouse, err := f.inventory.GetDefaultWarehouse(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, fallback, warehouse.ID)
	assert.Equal(t, models.DefaultWarehouseCode, warehouse.Code)
}
