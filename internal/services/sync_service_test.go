package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

func shopifyOrder(id, sku string) clients.ExternalOrder {
	return clients.ExternalOrder{
		ID:              id,
		OrderNumber:     "#" + id,
		Currency:        "USD",
		TotalPrice:      19.99,
		FinancialStatus: "paid",
		LineItems:       []clients.ExternalLineItem{{ID: "l-" + id, SKU: sku, Quantity: 1, Price: 19.99}},
	}
}

func TestSyncConnection_PagesAndAdvancesCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h.syncService.now = func() time.Time { return fixed }

	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.productPages = [][]clients.ExternalProduct{
		{shopifyProduct("PROD-001", 10, 1), shopifyProduct("PROD-002", 11, 2)},
		{shopifyProduct("PROD-003", 12, 3)},
	}
	h.shopify.orderPages = [][]clients.ExternalOrder{{shopifyOrder("1001", "PROD-001")}}

	run, err := h.syncService.SyncConnection(ctx, "tenant-1", conn.ID, models.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.SyncRunCompleted, run.Status)
	assert.Equal(t, 3, run.ProductsCreated)
	assert.Equal(t, 1, run.OrdersCreated)
	assert.Equal(t, 1, h.notifier.count(EventSyncCompleted))

	queries := h.shopify.productQueries()
	require.Len(t, queries, 2)
	assert.True(t, queries[0].Since.IsZero())
	assert.Equal(t, "", queries[0].Cursor)
	assert.Equal(t, "1", queries[1].Cursor)
	assert.Equal(t, 2, queries[0].Limit)

	stored, err := h.connections.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, stored.LastSyncedAt.Equal(fixed))

	// the next pass starts from the stored cursor
	_, err = h.syncService.SyncConnection(ctx, "tenant-1", conn.ID, models.TriggerManual)
	require.NoError(t, err)
	queries = h.shopify.productQueries()
	assert.True(t, queries[len(queries)-1].Since.Equal(fixed))

	runs, total, err := h.syncService.ListRuns(ctx, "tenant-1", repository.RunFilter{ConnectionID: &conn.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, runs, 2)
}

func TestSyncConnection_FetchFailureKeepsCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.productPages = [][]clients.ExternalProduct{{shopifyProduct("PROD-001", 10, 1)}}
	h.shopify.orderErr = apperrors.New(apperrors.KindTransientNetwork, "fetch_orders", "connection reset")

	run, err := h.syncService.SyncConnection(ctx, "tenant-1", conn.ID, models.TriggerManual)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.SyncRunFailed, run.Status)
	assert.Nil(t, run.CursorTo)
	assert.Equal(t, 1, run.ProductsCreated)

	stored, err := h.connections.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastSyncedAt)
	assert.Equal(t, 1, stored.ErrorCount)
	assert.Equal(t, models.ConnectionError, stored.Status)
	assert.Equal(t, 1, h.notifier.count(EventSyncFailed))
	assert.Equal(t, 0, h.notifier.count(EventConnectionInvalid))
}

func TestSyncConnection_ItemErrorsMakePartialRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")

	bad := shopifyProduct("", 10, 1)
	bad.Variants = nil
	h.shopify.productPages = [][]clients.ExternalProduct{{bad, shopifyProduct("PROD-001", 10, 1)}}

	run, err := h.syncService.SyncConnection(ctx, "tenant-1", conn.ID, models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunPartial, run.Status)
	assert.Equal(t, 1, run.Errors)
	assert.NotNil(t, run.CursorTo)
	assert.Contains(t, run.ErrorDetails, "itemErrors")
}

func TestSyncConnection_DisabledConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	conn.IsEnabled = false
	require.NoError(t, h.connections.Update(ctx, conn))

	run, err := h.syncService.SyncConnection(ctx, "tenant-1", conn.ID, models.TriggerManual)
	assert.Nil(t, run)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestSyncConnection_SingleFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.started = make(chan struct{}, 1)
	h.shopify.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.syncService.SyncConnection(ctx, "tenant-1", conn.ID, models.TriggerManual)
		done <- err
	}()
	<-h.shopify.started

	_, err := h.syncService.SyncConnection(ctx, "tenant-1", conn.ID, models.TriggerManual)
	assert.ErrorIs(t, err, apperrors.ErrSyncInProgress)

	close(h.shopify.block)
	require.NoError(t, <-done)
	assert.False(t, h.locker.IsLocked(conn.ID))
}

func TestSyncConnection_Timeout(t *testing.T) {
	h := newHarness(t)
	h.syncService.opts.Timeout = 20 * time.Millisecond
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.block = make(chan struct{})
	defer close(h.shopify.block)

	run, err := h.syncService.SyncConnection(context.Background(), "tenant-1", conn.ID, models.TriggerManual)
	require.Error(t, err)
	require.NotNil(t, run)

	stored, err := h.syncRepo.GetRun(context.Background(), "tenant-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestRunCycle_IsolatesFailingConnections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rejected := newFakeAdapter(models.MarketplaceShopify)
	rejected.productErr = apperrors.New(apperrors.KindAuthentication, "fetch_products", "invalid API key")
	h.provider.byToken["revoked"] = rejected

	good := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	bad := h.connect(t, "tenant-2", models.MarketplaceShopify, "revoked")
	expired := h.connect(t, "tenant-3", models.MarketplaceShopify, "revoked")
	past := time.Now().Add(-time.Hour)
	expired.ExpiresAt = &past
	require.NoError(t, h.connections.Update(ctx, expired))

	h.shopify.productPages = [][]clients.ExternalProduct{{shopifyProduct("PROD-001", 10, 1)}}

	summary, err := h.syncService.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	stored, err := h.connections.GetByID(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionConnected, stored.Status)
	assert.NotNil(t, stored.LastSyncedAt)

	stored, err = h.connections.GetByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionError, stored.Status)
	assert.Nil(t, stored.LastSyncedAt)

	stored, err = h.connections.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionExpired, stored.Status)

	assert.Equal(t, 2, h.notifier.count(EventConnectionInvalid))
	assert.Equal(t, 2, h.provider.evictions())
}

func TestRunCycle_SkipsBusyConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")

	release, err := h.locker.TryLock(ctx, conn.ID)
	require.NoError(t, err)
	defer release()

	summary, err := h.syncService.RunCycleForTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, OutcomeSkipped, summary.Connections[0].Outcome)
}

func TestIngest_NativePayload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")

	products, err := json.Marshal([]clients.ExternalProduct{shopifyProduct("PROD-001", 10, 4)})
	require.NoError(t, err)

	summary, err := h.syncService.Ingest(ctx, "tenant-1", &IngestRequest{ConnectionID: conn.ID, Products: products})
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunCompleted, summary.Status)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, []string{"marketplace_sync"}, h.ledger.charges)

	run, err := h.syncService.GetRun(ctx, "tenant-1", summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerIngest, run.TriggeredBy)

	// pushed payloads never move the pull cursor
	stored, err := h.connections.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastSyncedAt)
}

func TestIngest_WithoutPayloadRunsSync(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")
	h.shopify.productPages = [][]clients.ExternalProduct{{shopifyProduct("PROD-001", 10, 1)}}

	summary, err := h.syncService.Ingest(context.Background(), "tenant-1", &IngestRequest{ConnectionID: conn.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Len(t, h.shopify.productQueries(), 1)
}

func TestIngest_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := h.connect(t, "tenant-1", models.MarketplaceShopify, "good")

	_, err := h.syncService.Ingest(ctx, "tenant-1", &IngestRequest{})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = h.syncService.Ingest(ctx, "tenant-2", &IngestRequest{ConnectionID: conn.ID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	h.ledger.balance["tenant-1"] = 0
	_, err = h.syncService.Ingest(ctx, "tenant-1", &IngestRequest{ConnectionID: conn.ID})
	assert.Equal(t, apperrors.KindInsufficientCredits, apperrors.KindOf(err))
	assert.Empty(t, h.shopify.productQueries())

	h.ledger.balance["tenant-1"] = 5
	_, err = h.syncService.Ingest(ctx, "tenant-1", &IngestRequest{ConnectionID: conn.ID, Products: json.RawMessage(`{"not":"a list"}`)})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
