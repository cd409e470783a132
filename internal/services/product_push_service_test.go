package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/mappers"
	"marketplace-sync-service/internal/models"
)

func newPushService(h *harness, creditsPerPush int) *ProductPushService {
	return NewProductPushService(h.products, h.connections, h.connService, h.reconciler, h.ledger, creditsPerPush, testLogger())
}

func linkedProduct(t *testing.T, h *harness, conn *models.MarketplaceConnection, sku string) *models.Product {
	t.Helper()
	ctx := context.Background()
	cfg := models.DefaultSyncConfig(conn.TenantID, conn.ID)
	result := h.ingestion.IngestProducts(ctx, conn, cfg, []clients.ExternalProduct{shopifyProduct(sku, 19.99, 5)})
	require.NoError(t, result.Err)
	product, err := h.products.GetBySKU(ctx, conn.TenantID, sku)
	require.NoError(t, err)
	return product
}

func TestPush_SendsFieldsAndRecordsBaseline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	product := linkedProduct(t, h, conn, "PROD-001")

	price := decimal.RequireFromString("24.50")
	stock := 12
	status := "archived"
	result, err := newPushService(h, 1).Push(ctx, "tenant-1", product.ID, conn.ID, &PushRequest{Price: &price, Stock: &stock, Status: &status})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mappers.FieldPrice, mappers.FieldStatus, mappers.FieldStockQuantity}, result.Fields)

	require.Len(t, h.shopify.updates, 1)
	assert.Equal(t, "var-PROD-001", h.shopify.updates[0].VariantID)
	assert.Equal(t, "ARCHIVED", *h.shopify.updates[0].Status)
	require.Len(t, h.shopify.inventory, 1)
	assert.Equal(t, "inv-PROD-001", h.shopify.inventory[0].InventoryItemID)
	assert.Equal(t, 12, h.shopify.inventory[0].Quantity)
	assert.Equal(t, []string{"marketplace_push"}, h.ledger.charges)

	ref, err := h.products.GetReference(ctx, product.ID, conn.ID)
	require.NoError(t, err)
	priceBaseline, ok := ref.BaselineValue(mappers.FieldPrice)
	assert.True(t, ok)
	assert.Equal(t, "24.50", priceBaseline)
	warehouse, err := h.inventory.GetDefaultWarehouse(ctx, "tenant-1")
	require.NoError(t, err)
	stockBaseline, _ := ref.BaselineValue(mappers.StockBaselineField(warehouse.ID))
	assert.Equal(t, "12", stockBaseline)
	_, ok = ref.BaselineValue(mappers.FieldStockQuantity)
	assert.False(t, ok)
}

func TestPush_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	product := linkedProduct(t, h, conn, "PROD-001")
	svc := newPushService(h, 1)

	_, err := svc.Push(ctx, "tenant-1", product.ID, conn.ID, &PushRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNoUpdateFields)

	negative := -1
	_, err = svc.Push(ctx, "tenant-1", product.ID, conn.ID, &PushRequest{Stock: &negative})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	bogus := "deleted"
	_, err = svc.Push(ctx, "tenant-1", product.ID, conn.ID, &PushRequest{Status: &bogus})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	// linked to shopify only
	dukaan := h.connect(t, "tenant-1", models.MarketplaceDukaan, "good")
	stock := 3
	_, err = svc.Push(ctx, "tenant-1", product.ID, dukaan.ID, &PushRequest{Stock: &stock})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	h.ledger.balance["tenant-1"] = 0
	_, err = svc.Push(ctx, "tenant-1", product.ID, conn.ID, &PushRequest{Stock: &stock})
	assert.Equal(t, apperrors.KindInsufficientCredits, apperrors.KindOf(err))
	assert.Empty(t, h.shopify.inventory)
}

func TestPush_AuthFailureEvictsAdapter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	product := linkedProduct(t, h, conn, "PROD-001")
	h.shopify.updateErr = apperrors.New(apperrors.KindAuthentication, "update_inventory", "token revoked")

	stock := 3
	_, err := newPushService(h, 0).Push(ctx, "tenant-1", product.ID, conn.ID, &PushRequest{Stock: &stock})
	assert.True(t, apperrors.Is(err, apperrors.KindAuthentication))
	assert.Equal(t, 1, h.provider.evictions())
}

func TestPush_BaselineSurvivesConcurrentSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	product := linkedProduct(t, h, conn, "PROD-001")

	stale, err := h.products.GetReference(ctx, product.ID, conn.ID)
	require.NoError(t, err)
	fresh, err := h.products.GetReference(ctx, product.ID, conn.ID)
	require.NoError(t, err)
	fresh.SetBaseline(mappers.FieldName, "Widget v2")
	require.NoError(t, h.products.SaveReference(ctx, fresh))

	svc := newPushService(h, 0)
	require.NoError(t, svc.saveBaseline(ctx, stale, map[string]string{mappers.FieldPrice: "24.50"}, svc.now()))

	ref, err := h.products.GetReference(ctx, product.ID, conn.ID)
	require.NoError(t, err)
	name, _ := ref.BaselineValue(mappers.FieldName)
	price, _ := ref.BaselineValue(mappers.FieldPrice)
	assert.Equal(t, "Widget v2", name)
	assert.Equal(t, "24.50", price)
	assert.Equal(t, int64(3), ref.Version)
}
