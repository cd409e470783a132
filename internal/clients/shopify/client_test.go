package shopify

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

const productJSON = `{
	"id": 1001,
	"title": "Widget",
	"body_html": "<p>A widget</p>",
	"vendor": "Acme",
	"status": "active",
	"variants": [{
		"id": 2001, "product_id": 1001, "sku": "PROD-001", "barcode": "0123",
		"price": "19.99", "compare_at_price": "24.99",
		"inventory_quantity": 25, "inventory_item_id": 3001
	}],
	"updated_at": "2024-03-01T10:00:00Z"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	deps := clients.Deps{
		Limiter:     clients.NewRateLimiter(DefaultBuckets(), clients.BucketConfig{BurstCapacity: 10, RestoreRatePerSecond: 10}),
		RetryPolicy: clients.RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 1},
		Logger:      logrus.NewEntry(logger),
		BaseURLs:    map[models.MarketplaceType]string{models.MarketplaceShopify: server.URL},
	}

	adapter, err := New(secrets.Credentials{
		"store":          "acme",
		"access_token":   "shpat_test",
		"webhook_secret": "whsec",
		"location_id":    "4001",
	}, deps)
	require.NoError(t, err)
	return adapter.(*Client)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(secrets.Credentials{"store": "acme"}, clients.Deps{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestTestConnection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shop.json", r.URL.Path)
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"shop":{"id":1}}`))
	})

	ok, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	c.accessToken = "wrong"
	ok, err = c.TestConnection(context.Background())
	assert.False(t, ok)
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}

func TestFetchProducts(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products.json", r.URL.Path)
		if r.URL.Query().Get("page_info") == "" {
			assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("updated_at_min"))
			w.Header().Set("Link", `<https://acme.myshopify.com/admin/api/2024-01/products.json?limit=50&page_info=abc>; rel="next"`)
		} else {
			assert.Empty(t, r.URL.Query().Get("updated_at_min"))
		}
		_, _ = w.Write([]byte(`{"products":[` + productJSON + `]}`))
	})

	page, err := c.FetchProducts(context.Background(), &clients.ProductQuery{Since: since})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.True(t, page.HasMore)
	assert.Equal(t, "abc", page.NextCursor)

	p := page.Products[0]
	assert.Equal(t, "1001", p.ID)
	assert.Equal(t, "PROD-001", p.SKU)
	assert.Equal(t, 19.99, p.Price)
	require.NotNil(t, p.CompareAtPrice)
	assert.Equal(t, 24.99, *p.CompareAtPrice)
	assert.Equal(t, 25, p.Quantity)
	assert.Equal(t, "4001", p.LocationID)
	assert.Equal(t, "3001", p.InventoryItemID())

	page, err = c.FetchProducts(context.Background(), &clients.ProductQuery{Cursor: "abc"})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestUpdateProduct(t *testing.T) {
	var variantBody map[string]map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/products/1001.json":
			_, _ = w.Write([]byte(`{"product":` + productJSON + `}`))
		case r.Method == http.MethodPut && r.URL.Path == "/variants/2001.json":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&variantBody))
			_, _ = w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	price := decimal.RequireFromString("17.50")
	_, err := c.UpdateProduct(context.Background(), "1001", &clients.ProductUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "17.50", variantBody["variant"]["price"])

	_, err = c.UpdateProduct(context.Background(), "1001", &clients.ProductUpdate{})
	assert.ErrorIs(t, err, apperrors.ErrNoUpdateFields)
}

func TestUpdateInventory(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory_levels/set.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.UpdateInventory(context.Background(), []clients.InventoryUpdate{{SKU: "PROD-001", InventoryItemID: "3001", Quantity: 30}})
	require.NoError(t, err)
	assert.Equal(t, float64(4001), body["location_id"])
	assert.Equal(t, float64(3001), body["inventory_item_id"])
	assert.Equal(t, float64(30), body["available"])

	err = c.UpdateInventory(context.Background(), []clients.InventoryUpdate{{SKU: "PROD-002"}})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCancelOrder(t *testing.T) {
	var reason string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/555/cancel.json", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		reason = body["reason"]
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.CancelOrder(context.Background(), "555", "customer changed mind"))
	assert.Equal(t, "other", reason)
}

func TestHandleWebhook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	body := []byte(productJSON)
	headers := http.Header{}
	headers.Set("X-Shopify-Topic", "products/update")
	headers.Set("X-Shopify-Webhook-Id", "wh-1")
	headers.Set("X-Shopify-Hmac-Sha256", clients.SignHMAC("whsec", body, clients.SignatureBase64))

	event, err := c.HandleWebhook(context.Background(), &clients.WebhookRequest{Headers: headers, Body: body})
	require.NoError(t, err)
	assert.Equal(t, "wh-1", event.EventID)
	assert.Equal(t, clients.ResourceProduct, event.ResourceType)
	assert.Equal(t, "1001", event.ResourceID)
	require.NotNil(t, event.Product)
	assert.Equal(t, "PROD-001", event.Product.SKU)

	headers.Set("X-Shopify-Hmac-Sha256", "forged")
	_, err = c.HandleWebhook(context.Background(), &clients.WebhookRequest{Headers: headers, Body: body})
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}

func TestParsePagination(t *testing.T) {
	cursor, more := parsePagination(`<https://x/products.json?page_info=prev>; rel="previous", <https://x/products.json?page_info=next>; rel="next"`)
	assert.True(t, more)
	assert.Equal(t, "next", cursor)

	_, more = parsePagination("")
	assert.False(t, more)
}

