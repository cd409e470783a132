package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/cache"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

func newWebhookService(h *harness, seen SeenSet) *WebhookService {
	svc := NewWebhookService(h.webhooks, h.connections, h.connService, h.syncService, h.ingestion, NewEventOrdering(h.db), seen, time.Hour, testLogger())
	svc.dispatch = func(fn func()) { fn() }
	return svc
}

func productEvent(eventID, sku string, quantity int) *clients.WebhookEvent {
	product := shopifyProduct(sku, 19.99, quantity)
	return &clients.WebhookEvent{
		EventID:      eventID,
		EventType:    "products/update",
		ResourceType: clients.ResourceProduct,
		ResourceID:   product.ID,
		Payload:      map[string]interface{}{"id": product.ID},
		Product:      &product,
	}
}

func TestWebhookReceive_IngestsEmbeddedProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.webhookEvent = productEvent("evt-1", "PROD-001", 7)
	svc := newWebhookService(h, cache.NewMemorySeenSet())

	receipt, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, receipt.Received)
	assert.False(t, receipt.Duplicate)
	assert.Equal(t, "evt-1", receipt.EventID)

	product, err := h.products.GetBySKU(ctx, "tenant-1", "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 7, product.StockQuantity)

	stored, err := h.webhooks.GetByID(ctx, receipt.WebhookID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Empty(t, stored.ProcessingError)
	assert.Equal(t, "SHOPIFY-evt-1", stored.IdempotencyKey)

	// no pull pass for an embedded record
	assert.Empty(t, h.shopify.productQueries())
}

func TestWebhookReceive_DropsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.webhookEvent = productEvent("evt-1", "PROD-001", 7)
	seen := cache.NewMemorySeenSet()
	svc := newWebhookService(h, seen)

	_, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{})
	require.NoError(t, err)

	h.shopify.webhookEvent = productEvent("evt-1", "PROD-001", 2)
	receipt, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{})
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)

	product, err := h.products.GetBySKU(ctx, "tenant-1", "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 7, product.StockQuantity)

	// the seen-set expired or was lost: the durable key still catches it
	require.NoError(t, seen.Forget(ctx, models.WebhookIdempotencyKey(models.MarketplaceShopify, "evt-1")))
	receipt, err = svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{})
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)

	events, err := svc.ListEvents(ctx, "tenant-1", conn.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWebhookReceive_WithoutSeenSet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.webhookEvent = productEvent("evt-9", "PROD-009", 1)
	svc := newWebhookService(h, nil)

	first, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
}

func TestWebhookReceive_NotificationTriggersSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.productPages = [][]clients.ExternalProduct{{shopifyProduct("PROD-001", 10, 3)}}
	h.shopify.webhookEvent = &clients.WebhookEvent{
		EventID:      "evt-2",
		EventType:    "inventory_levels/update",
		ResourceType: clients.ResourceInventory,
		ResourceID:   "inv-PROD-001",
	}
	svc := newWebhookService(h, cache.NewMemorySeenSet())

	_, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{})
	require.NoError(t, err)

	assert.Len(t, h.shopify.productQueries(), 1)
	runs, total, err := h.syncService.ListRuns(ctx, "tenant-1", repository.RunFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, models.TriggerWebhook, runs[0].TriggeredBy)
}

func TestWebhookReceive_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	seen := cache.NewMemorySeenSet()
	svc := newWebhookService(h, seen)

	_, err := svc.Receive(ctx, models.MarketplaceDukaan, conn.ID, &clients.WebhookRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	h.shopify.webhookErr = apperrors.New(apperrors.KindAuthentication, "verify_webhook", "signature mismatch")
	_, err = svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{})
	assert.True(t, apperrors.Is(err, apperrors.KindAuthentication))
	assert.Equal(t, 0, seen.Len())
}

func TestWebhookReceive_SkipsStaleEmbeddedRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	svc := newWebhookService(h, cache.NewMemorySeenSet())
	newer := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	event := productEvent("evt-2", "PROD-001", 9)
	event.Timestamp = newer
	h.shopify.webhookEvent = event
	_, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{Body: []byte(`{}`)})
	require.NoError(t, err)

	// an older state delivered late must not roll stock back
	event = productEvent("evt-1", "PROD-001", 3)
	event.Timestamp = newer.Add(-time.Minute)
	h.shopify.webhookEvent = event
	receipt, err := svc.Receive(ctx, models.MarketplaceShopify, conn.ID, &clients.WebhookRequest{Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.False(t, receipt.Duplicate)

	product, err := h.products.GetBySKU(ctx, "tenant-1", "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 9, product.StockQuantity)

	stored, err := h.webhooks.GetByID(ctx, receipt.WebhookID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Empty(t, stored.ProcessingError)
}
