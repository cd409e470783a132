package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/secrets"
)

const (
	apiVersion   = "2024-01"
	defaultLimit = 50
)

// DefaultBuckets mirrors the Admin REST leaky bucket: 40 requests, 2 per second
func DefaultBuckets() map[clients.BucketKey]clients.BucketConfig {
	mt := models.MarketplaceShopify
	return map[clients.BucketKey]clients.BucketConfig{
		{Marketplace: mt, Class: clients.ClassRead}:      {BurstCapacity: 40, RestoreRatePerSecond: 2},
		{Marketplace: mt, Class: clients.ClassWrite}:     {BurstCapacity: 40, RestoreRatePerSecond: 2},
		{Marketplace: mt, Class: clients.ClassInventory}: {BurstCapacity: 40, RestoreRatePerSecond: 2},
		{Marketplace: mt, Class: clients.ClassAuth}:      {BurstCapacity: 10, RestoreRatePerSecond: 1},
	}
}

// Client implements clients.Adapter for the Shopify Admin REST API
type Client struct {
	transport     *clients.Transport
	baseURL       string
	accessToken   string
	webhookSecret string
	locationID    string
}

// New creates a Shopify adapter from connection credentials
func New(creds secrets.Credentials, deps clients.Deps) (clients.Adapter, error) {
	store := creds.Get("store")
	if store == "" {
		return nil, apperrors.New(apperrors.KindValidation, "shopify.new", "missing store name")
	}
	accessToken := creds.Get("access_token")
	if accessToken == "" {
		return nil, apperrors.New(apperrors.KindValidation, "shopify.new", "missing access_token")
	}

	store = strings.TrimSuffix(store, ".myshopify.com")
	base := fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", store, apiVersion)

	webhookSecret := creds.Get("webhook_secret")
	if webhookSecret == "" {
		webhookSecret = creds.Get("api_secret")
	}

	return &Client{
		transport:     clients.NewTransport(models.MarketplaceShopify, deps),
		baseURL:       deps.BaseURL(models.MarketplaceShopify, base),
		accessToken:   accessToken,
		webhookSecret: webhookSecret,
		locationID:    creds.Get("location_id"),
	}, nil
}

// Marketplace returns the marketplace type
func (c *Client) Marketplace() models.MarketplaceType {
	return models.MarketplaceShopify
}

// TestConnection verifies the access token against the shop endpoint
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	var shop struct {
		Shop struct {
			ID int64 `json:"id"`
		} `json:"shop"`
	}
	if _, err := c.do(ctx, "test_connection", clients.ClassAuth, http.MethodGet, "/shop.json", nil, nil, &shop); err != nil {
		return false, err
	}
	return true, nil
}

// FetchProducts fetches one page of products updated since query.Since
func (c *Client) FetchProducts(ctx context.Context, query *clients.ProductQuery) (*clients.ProductPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limitOrDefault(query.Limit)))
	if query.Cursor != "" {
		// page_info cannot be combined with other filters
		params.Set("page_info", query.Cursor)
	} else {
		if !query.Since.IsZero() {
			params.Set("updated_at_min", query.Since.UTC().Format(time.RFC3339))
		}
		if query.Filter.Status != "" {
			params.Set("status", strings.ToLower(query.Filter.Status))
		}
	}

	var response struct {
		Products []shopifyProduct `json:"products"`
	}
	resp, err := c.do(ctx, "fetch_products", clients.ClassRead, http.MethodGet, "/products.json", params, nil, &response)
	if err != nil {
		return nil, err
	}

	skus := make(map[string]bool, len(query.Filter.SKUs))
	for _, sku := range query.Filter.SKUs {
		skus[sku] = true
	}

	products := make([]clients.ExternalProduct, 0, len(response.Products))
	for _, p := range response.Products {
		product := c.convertProduct(p)
		if len(skus) > 0 && !skus[product.SKU] {
			continue
		}
		products = append(products, product)
	}

	nextCursor, hasMore := parsePagination(resp.Header.Get("Link"))
	return &clients.ProductPage{Products: products, NextCursor: nextCursor, HasMore: hasMore}, nil
}

// CreateProduct creates a single-variant product
func (c *Client) CreateProduct(ctx context.Context, input *clients.ProductInput) (*clients.ExternalProduct, error) {
	variant := map[string]interface{}{
		"sku":                  input.SKU,
		"price":                input.Price.StringFixed(2),
		"barcode":              input.Barcode,
		"inventory_management": "shopify",
	}
	if input.RRP != nil {
		variant["compare_at_price"] = input.RRP.StringFixed(2)
	}

	body := map[string]interface{}{
		"product": map[string]interface{}{
			"title":     input.Title,
			"body_html": input.Description,
			"vendor":    input.Brand,
			"status":    toShopifyStatus(input.Status),
			"variants":  []interface{}{variant},
		},
	}

	var response struct {
		Product shopifyProduct `json:"product"`
	}
	if _, err := c.do(ctx, "create_product", clients.ClassWrite, http.MethodPost, "/products.json", nil, body, &response); err != nil {
		return nil, err
	}

	product := c.convertProduct(response.Product)
	if input.Quantity > 0 && product.InventoryItemID() != "" {
		err := c.UpdateInventory(ctx, []clients.InventoryUpdate{{
			SKU:             input.SKU,
			InventoryItemID: product.InventoryItemID(),
			Quantity:        input.Quantity,
		}})
		if err != nil {
			return &product, err
		}
		product.Quantity = input.Quantity
	}
	return &product, nil
}

// UpdateProduct applies a partial update; price fields go to the variant
func (c *Client) UpdateProduct(ctx context.Context, externalID string, update *clients.ProductUpdate) (*clients.ExternalProduct, error) {
	if update.IsEmpty() {
		return nil, apperrors.Wrap(apperrors.KindValidation, "update_product", apperrors.ErrNoUpdateFields)
	}

	if update.Title != nil || update.Status != nil {
		fields := map[string]interface{}{"id": externalID}
		if update.Title != nil {
			fields["title"] = *update.Title
		}
		if update.Status != nil {
			fields["status"] = toShopifyStatus(*update.Status)
		}
		path := fmt.Sprintf("/products/%s.json", externalID)
		if _, err := c.do(ctx, "update_product", clients.ClassWrite, http.MethodPut, path, nil, map[string]interface{}{"product": fields}, nil); err != nil {
			return nil, err
		}
	}

	if update.Price != nil || update.RRP != nil {
		variantID := update.VariantID
		if variantID == "" {
			current, err := c.getProduct(ctx, externalID)
			if err != nil {
				return nil, err
			}
			if len(current.Variants) == 0 {
				return nil, apperrors.New(apperrors.KindValidation, "update_product", "product %s has no variants", externalID)
			}
			variantID = current.Variants[0].ID
		}

		fields := map[string]interface{}{"id": variantID}
		if update.Price != nil {
			fields["price"] = update.Price.StringFixed(2)
		}
		if update.RRP != nil {
			fields["compare_at_price"] = update.RRP.StringFixed(2)
		}
		path := fmt.Sprintf("/variants/%s.json", variantID)
		if _, err := c.do(ctx, "update_variant", clients.ClassWrite, http.MethodPut, path, nil, map[string]interface{}{"variant": fields}, nil); err != nil {
			return nil, err
		}
	}

	return c.getProduct(ctx, externalID)
}

// UpdateInventory sets available quantities at a location
func (c *Client) UpdateInventory(ctx context.Context, updates []clients.InventoryUpdate) error {
	for _, u := range updates {
		locationID := u.LocationID
		if locationID == "" {
			locationID = c.locationID
		}
		if u.InventoryItemID == "" || locationID == "" {
			return apperrors.New(apperrors.KindValidation, "update_inventory", "inventory item and location are required for sku %s", u.SKU)
		}
		if u.Quantity < 0 {
			return apperrors.New(apperrors.KindValidation, "update_inventory", "negative quantity for sku %s", u.SKU)
		}

		body := map[string]interface{}{
			"location_id":       json.Number(locationID),
			"inventory_item_id": json.Number(u.InventoryItemID),
			"available":         u.Quantity,
		}
		if _, err := c.do(ctx, "update_inventory", clients.ClassInventory, http.MethodPost, "/inventory_levels/set.json", nil, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// FetchOrders fetches one page of orders updated since query.Since
func (c *Client) FetchOrders(ctx context.Context, query *clients.OrderQuery) (*clients.OrderPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limitOrDefault(query.Limit)))
	if query.Cursor != "" {
		params.Set("page_info", query.Cursor)
	} else {
		params.Set("status", "any")
		if !query.Since.IsZero() {
			params.Set("updated_at_min", query.Since.UTC().Format(time.RFC3339))
		}
	}

	var response struct {
		Orders []shopifyOrder `json:"orders"`
	}
	resp, err := c.do(ctx, "fetch_orders", clients.ClassRead, http.MethodGet, "/orders.json", params, nil, &response)
	if err != nil {
		return nil, err
	}

	orders := make([]clients.ExternalOrder, 0, len(response.Orders))
	for _, o := range response.Orders {
		orders = append(orders, convertOrder(o))
	}

	nextCursor, hasMore := parsePagination(resp.Header.Get("Link"))
	return &clients.OrderPage{Orders: orders, NextCursor: nextCursor, HasMore: hasMore}, nil
}

// CancelOrder cancels an order; unknown reasons are sent as "other"
func (c *Client) CancelOrder(ctx context.Context, externalOrderID, reason string) error {
	switch reason {
	case "customer", "fraud", "inventory", "declined", "other":
	default:
		reason = "other"
	}
	path := fmt.Sprintf("/orders/%s/cancel.json", externalOrderID)
	_, err := c.do(ctx, "cancel_order", clients.ClassWrite, http.MethodPost, path, nil, map[string]string{"reason": reason}, nil)
	return err
}

// HandleWebhook verifies X-Shopify-Hmac-Sha256 and parses the delivery
func (c *Client) HandleWebhook(ctx context.Context, req *clients.WebhookRequest) (*clients.WebhookEvent, error) {
	signature := req.Headers.Get("X-Shopify-Hmac-Sha256")
	if err := clients.VerifyHMAC(models.MarketplaceShopify, c.webhookSecret, req.Body, signature, clients.SignatureBase64); err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "handle_webhook", err)
	}

	topic := req.Headers.Get("X-Shopify-Topic")
	event := &clients.WebhookEvent{
		EventID:      req.Headers.Get("X-Shopify-Webhook-Id"),
		EventType:    topic,
		ResourceType: resourceType(topic),
		Payload:      payload,
		Timestamp:    time.Now().UTC(),
	}
	if event.EventID == "" {
		if gid, ok := payload["admin_graphql_api_id"].(string); ok {
			event.EventID = gid + "@" + req.Headers.Get("X-Shopify-Triggered-At")
		}
	}
	if event.EventID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "handle_webhook", "webhook has no event id")
	}
	if id, ok := payload["id"].(float64); ok {
		event.ResourceID = strconv.FormatInt(int64(id), 10)
	}
	if ts, err := time.Parse(time.RFC3339, req.Headers.Get("X-Shopify-Triggered-At")); err == nil {
		event.Timestamp = ts
	}

	switch event.ResourceType {
	case clients.ResourceProduct:
		if !strings.HasSuffix(topic, "/delete") {
			var p shopifyProduct
			if err := json.Unmarshal(req.Body, &p); err == nil && p.ID != 0 {
				product := c.convertProduct(p)
				event.Product = &product
			}
		}
	case clients.ResourceOrder:
		var o shopifyOrder
		if err := json.Unmarshal(req.Body, &o); err == nil && o.ID != 0 {
			order := convertOrder(o)
			event.Order = &order
		}
	}

	return event, nil
}

func (c *Client) getProduct(ctx context.Context, externalID string) (*clients.ExternalProduct, error) {
	var response struct {
		Product shopifyProduct `json:"product"`
	}
	path := fmt.Sprintf("/products/%s.json", externalID)
	if _, err := c.do(ctx, "get_product", clients.ClassRead, http.MethodGet, path, nil, nil, &response); err != nil {
		return nil, err
	}
	product := c.convertProduct(response.Product)
	return &product, nil
}

// do performs an authenticated request through the shared transport
func (c *Client) do(ctx context.Context, op string, class clients.OperationClass, method, path string, params url.Values, body, out interface{}) (*clients.Response, error) {
	return c.transport.DoJSON(ctx, &clients.Request{
		Op:     op,
		Class:  class,
		Method: method,
		URL:    c.baseURL + path,
		Query:  params,
		Header: http.Header{"X-Shopify-Access-Token": {c.accessToken}},
		Body:   body,
	}, out)
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 250 {
		return defaultLimit
	}
	return limit
}

func toShopifyStatus(status string) string {
	switch strings.ToUpper(status) {
	case string(models.ProductDraft):
		return "draft"
	case string(models.ProductArchived):
		return "archived"
	default:
		return "active"
	}
}

func resourceType(topic string) string {
	switch {
	case strings.HasPrefix(topic, "products/"):
		return clients.ResourceProduct
	case strings.HasPrefix(topic, "orders/"):
		return clients.ResourceOrder
	case strings.HasPrefix(topic, "inventory_levels/"), strings.HasPrefix(topic, "inventory_items/"):
		return clients.ResourceInventory
	default:
		return "unknown"
	}
}

func parsePagination(linkHeader string) (string, bool) {
	// Format: <url>; rel="next", <url>; rel="previous"
	if linkHeader == "" {
		return "", false
	}
	for _, part := range strings.Split(linkHeader, ",") {
		if strings.Contains(part, `rel="next"`) {
			urlPart := strings.TrimSpace(strings.Split(part, ";")[0])
			urlPart = strings.Trim(urlPart, "<>")
			if parsedURL, err := url.Parse(urlPart); err == nil {
				if cursor := parsedURL.Query().Get("page_info"); cursor != "" {
					return cursor, true
				}
			}
		}
	}
	return "", false
}
