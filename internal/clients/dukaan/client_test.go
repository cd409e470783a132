package dukaan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/secrets"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	deps := clients.Deps{
		Limiter:     clients.NewRateLimiter(DefaultBuckets(), clients.BucketConfig{}),
		RetryPolicy: clients.RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 2},
		Logger:      logrus.NewEntry(logger),
		BaseURLs:    map[models.MarketplaceType]string{models.MarketplaceDukaan: server.URL},
	}

	adapter, err := New(secrets.Credentials{"api_key": "dk_test", "store_id": "store-1", "webhook_secret": "whsec"}, deps)
	require.NoError(t, err)
	return adapter.(*Client)
}

func TestFetchProductsPagesByNumber(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer dk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "store-1", r.Header.Get("X-Store-Id"))
		assert.Equal(t, "/products", r.URL.Path)

		page := r.URL.Query().Get("page")
		hasNext := page == "1"
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"products": []map[string]interface{}{{
					"id": "p-" + page, "name": "Widget", "sku": "PROD-00" + page,
					"selling_price": 19.99, "original_price": 24.99, "inventory": 25, "status": "active",
				}},
				"pagination": map[string]interface{}{"current_page": 1, "has_next": hasNext},
			},
		})
	})

	page, err := c.FetchProducts(context.Background(), &clients.ProductQuery{})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.True(t, page.HasMore)
	assert.Equal(t, "2", page.NextCursor)

	p := page.Products[0]
	assert.Equal(t, "PROD-001", p.SKU)
	assert.Equal(t, 19.99, p.Price)
	require.NotNil(t, p.CompareAtPrice)
	assert.Equal(t, 24.99, *p.CompareAtPrice)
	assert.Equal(t, 25, p.Quantity)

	page, err = c.FetchProducts(context.Background(), &clients.ProductQuery{Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, "PROD-002", page.Products[0].SKU)
}

func TestUpdateProductSendsOnlySetFields(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/products/p-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"data":{"id":"p-1","sku":"PROD-001","selling_price":17.5}}`))
	})

	price := decimal.RequireFromString("17.5")
	product, err := c.UpdateProduct(context.Background(), "p-1", &clients.ProductUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 17.5, product.Price)
	assert.Equal(t, map[string]interface{}{"selling_price": 17.5}, body)
}

func TestUpdateInventoryBulk(t *testing.T) {
	var body struct {
		Items []map[string]interface{} `json:"items"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory/bulk-update", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	err := c.UpdateInventory(context.Background(), []clients.InventoryUpdate{
		{SKU: "PROD-001", Quantity: 30},
		{SKU: "PROD-002", ProductID: "p-2", Quantity: 0},
	})
	require.NoError(t, err)
	require.Len(t, body.Items, 2)
	assert.Equal(t, float64(30), body.Items[0]["inventory"])
	assert.Equal(t, "p-2", body.Items[1]["product_id"])

	err = c.UpdateInventory(context.Background(), []clients.InventoryUpdate{{SKU: "PROD-001", Quantity: -1}})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestServerErrorsAreRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"name":"Store"}}`))
	})

	ok, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, calls)
}

func TestHandleWebhook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	body := []byte(`{"id":"evt-1","event":"order.created","created_at":"2024-03-01T10:00:00Z",
		"data":{"id":"o-1","order_number":"D-1001","status":"confirmed","payment_status":"paid","total":39.98,"currency":"INR",
		"line_items":[{"id":"li-1","sku":"PROD-001","quantity":2,"price":19.99}]}}`)
	headers := http.Header{}
	headers.Set("X-Dukaan-Signature", clients.SignHMAC("whsec", body, clients.SignatureHex))

	event, err := c.HandleWebhook(context.Background(), &clients.WebhookRequest{Headers: headers, Body: body})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.EventID)
	assert.Equal(t, clients.ResourceOrder, event.ResourceType)
	assert.Equal(t, "o-1", event.ResourceID)
	require.NotNil(t, event.Order)
	assert.Equal(t, "D-1001", event.Order.OrderNumber)
	require.Len(t, event.Order.LineItems, 1)

	headers.Del("X-Dukaan-Signature")
	_, err = c.HandleWebhook(context.Background(), &clients.WebhookRequest{Headers: headers, Body: body})
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}
