package dukaan

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
	baseURL      = "https://api.mydukaan.io/api/v1"
	defaultLimit = 50
)

// DefaultBuckets allows 10 requests per second for every class
func DefaultBuckets() map[clients.BucketKey]clients.BucketConfig {
	mt := models.MarketplaceDukaan
	cfg := clients.BucketConfig{BurstCapacity: 10, RestoreRatePerSecond: 10}
	return map[clients.BucketKey]clients.BucketConfig{
		{Marketplace: mt, Class: clients.ClassRead}:      cfg,
		{Marketplace: mt, Class: clients.ClassWrite}:     cfg,
		{Marketplace: mt, Class: clients.ClassInventory}: cfg,
		{Marketplace: mt, Class: clients.ClassAuth}:      cfg,
	}
}

// Client implements clients.Adapter for Dukaan
type Client struct {
	transport     *clients.Transport
	baseURL       string
	apiKey        string
	storeID       string
	webhookSecret string
}

// New creates a Dukaan adapter from connection credentials
func New(creds secrets.Credentials, deps clients.Deps) (clients.Adapter, error) {
	apiKey := creds.Get("api_key")
	if apiKey == "" {
		return nil, apperrors.New(apperrors.KindValidation, "dukaan.new", "missing api_key")
	}
	storeID := creds.Get("store_id")
	if storeID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "dukaan.new", "missing store_id")
	}

	return &Client{
		transport:     clients.NewTransport(models.MarketplaceDukaan, deps),
		baseURL:       deps.BaseURL(models.MarketplaceDukaan, baseURL),
		apiKey:        apiKey,
		storeID:       storeID,
		webhookSecret: creds.Get("webhook_secret"),
	}, nil
}

// Marketplace returns the marketplace type
func (c *Client) Marketplace() models.MarketplaceType {
	return models.MarketplaceDukaan
}

// TestConnection verifies the API key against the store endpoint
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	if _, err := c.do(ctx, "test_connection", clients.ClassAuth, http.MethodGet, "/store", nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// FetchProducts fetches one page; the cursor is the page number
func (c *Client) FetchProducts(ctx context.Context, query *clients.ProductQuery) (*clients.ProductPage, error) {
	params := pageParams(query.Cursor, query.Limit)
	if !query.Since.IsZero() {
		params.Set("updated_after", query.Since.UTC().Format(time.RFC3339))
	}
	if query.Filter.Status != "" {
		params.Set("status", strings.ToLower(query.Filter.Status))
	}
	if len(query.Filter.SKUs) > 0 {
		params.Set("sku", strings.Join(query.Filter.SKUs, ","))
	}

	var response struct {
		Data struct {
			Products   []dukaanProduct `json:"products"`
			Pagination pagination      `json:"pagination"`
		} `json:"data"`
	}
	if _, err := c.do(ctx, "fetch_products", clients.ClassRead, http.MethodGet, "/products", params, nil, &response); err != nil {
		return nil, err
	}

	products := make([]clients.ExternalProduct, 0, len(response.Data.Products))
	for _, p := range response.Data.Products {
		products = append(products, convertProduct(p))
	}

	next, more := response.Data.Pagination.next()
	return &clients.ProductPage{Products: products, NextCursor: next, HasMore: more}, nil
}

// CreateProduct creates a product
func (c *Client) CreateProduct(ctx context.Context, input *clients.ProductInput) (*clients.ExternalProduct, error) {
	body := map[string]interface{}{
		"name":          input.Title,
		"description":   input.Description,
		"sku":           input.SKU,
		"selling_price": json.Number(input.Price.StringFixed(2)),
		"inventory":     input.Quantity,
		"status":        toDukaanStatus(input.Status),
	}
	if input.RRP != nil {
		body["original_price"] = json.Number(input.RRP.StringFixed(2))
	}

	var response struct {
		Data dukaanProduct `json:"data"`
	}
	if _, err := c.do(ctx, "create_product", clients.ClassWrite, http.MethodPost, "/products", nil, body, &response); err != nil {
		return nil, err
	}
	product := convertProduct(response.Data)
	return &product, nil
}

// UpdateProduct applies a partial update
func (c *Client) UpdateProduct(ctx context.Context, externalID string, update *clients.ProductUpdate) (*clients.ExternalProduct, error) {
	if update.IsEmpty() {
		return nil, apperrors.Wrap(apperrors.KindValidation, "update_product", apperrors.ErrNoUpdateFields)
	}

	body := map[string]interface{}{}
	if update.Title != nil {
		body["name"] = *update.Title
	}
	if update.Status != nil {
		body["status"] = toDukaanStatus(*update.Status)
	}
	if update.Price != nil {
		body["selling_price"] = json.Number(update.Price.StringFixed(2))
	}
	if update.RRP != nil {
		body["original_price"] = json.Number(update.RRP.StringFixed(2))
	}

	var response struct {
		Data dukaanProduct `json:"data"`
	}
	path := fmt.Sprintf("/products/%s", url.PathEscape(externalID))
	if _, err := c.do(ctx, "update_product", clients.ClassWrite, http.MethodPatch, path, nil, body, &response); err != nil {
		return nil, err
	}
	product := convertProduct(response.Data)
	return &product, nil
}

// UpdateInventory sends all quantities in one bulk request
func (c *Client) UpdateInventory(ctx context.Context, updates []clients.InventoryUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	items := make([]map[string]interface{}, 0, len(updates))
	for _, u := range updates {
		if u.SKU == "" && u.ProductID == "" {
			return apperrors.New(apperrors.KindValidation, "update_inventory", "sku or product id is required")
		}
		if u.Quantity < 0 {
			return apperrors.New(apperrors.KindValidation, "update_inventory", "negative quantity for sku %s", u.SKU)
		}
		item := map[string]interface{}{"sku": u.SKU, "inventory": u.Quantity}
		if u.ProductID != "" {
			item["product_id"] = u.ProductID
		}
		if u.VariantID != "" {
			item["variant_id"] = u.VariantID
		}
		items = append(items, item)
	}

	_, err := c.do(ctx, "update_inventory", clients.ClassInventory, http.MethodPost, "/inventory/bulk-update", nil, map[string]interface{}{"items": items}, nil)
	return err
}

// FetchOrders fetches one page of orders updated since query.Since
func (c *Client) FetchOrders(ctx context.Context, query *clients.OrderQuery) (*clients.OrderPage, error) {
	params := pageParams(query.Cursor, query.Limit)
	if !query.Since.IsZero() {
		params.Set("updated_after", query.Since.UTC().Format(time.RFC3339))
	}

	var response struct {
		Data struct {
			Orders     []dukaanOrder `json:"orders"`
			Pagination pagination    `json:"pagination"`
		} `json:"data"`
	}
	if _, err := c.do(ctx, "fetch_orders", clients.ClassRead, http.MethodGet, "/orders", params, nil, &response); err != nil {
		return nil, err
	}

	orders := make([]clients.ExternalOrder, 0, len(response.Data.Orders))
	for _, o := range response.Data.Orders {
		orders = append(orders, convertOrder(o))
	}

	next, more := response.Data.Pagination.next()
	return &clients.OrderPage{Orders: orders, NextCursor: next, HasMore: more}, nil
}

// CancelOrder moves an order to the cancelled state
func (c *Client) CancelOrder(ctx context.Context, externalOrderID, reason string) error {
	path := fmt.Sprintf("/orders/%s/status", url.PathEscape(externalOrderID))
	body := map[string]string{"status": "cancelled", "reason": reason}
	_, err := c.do(ctx, "cancel_order", clients.ClassWrite, http.MethodPut, path, nil, body, nil)
	return err
}

// HandleWebhook verifies the hex HMAC in X-Dukaan-Signature and parses the event
func (c *Client) HandleWebhook(ctx context.Context, req *clients.WebhookRequest) (*clients.WebhookEvent, error) {
	signature := req.Headers.Get("X-Dukaan-Signature")
	if err := clients.VerifyHMAC(models.MarketplaceDukaan, c.webhookSecret, req.Body, signature, clients.SignatureHex); err != nil {
		return nil, err
	}

	var envelope struct {
		ID        string          `json:"id"`
		Event     string          `json:"event"`
		CreatedAt time.Time       `json:"created_at"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "handle_webhook", err)
	}
	if envelope.ID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "handle_webhook", "webhook has no event id")
	}

	var payload map[string]interface{}
	_ = json.Unmarshal(req.Body, &payload)

	event := &clients.WebhookEvent{
		EventID:      envelope.ID,
		EventType:    envelope.Event,
		ResourceType: resourceType(envelope.Event),
		Payload:      payload,
		Timestamp:    envelope.CreatedAt,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	switch event.ResourceType {
	case clients.ResourceProduct:
		var p dukaanProduct
		if err := json.Unmarshal(envelope.Data, &p); err == nil && p.ID != "" {
			event.ResourceID = p.ID
			if !strings.HasSuffix(envelope.Event, ".deleted") {
				product := convertProduct(p)
				event.Product = &product
			}
		}
	case clients.ResourceOrder:
		var o dukaanOrder
		if err := json.Unmarshal(envelope.Data, &o); err == nil && o.ID != "" {
			event.ResourceID = o.ID
			order := convertOrder(o)
			event.Order = &order
		}
	default:
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(envelope.Data, &ref); err == nil {
			event.ResourceID = ref.ID
		}
	}
	return event, nil
}

// do performs an authenticated request through the shared transport
func (c *Client) do(ctx context.Context, op string, class clients.OperationClass, method, path string, params url.Values, body, out interface{}) (*clients.Response, error) {
	return c.transport.DoJSON(ctx, &clients.Request{
		Op:     op,
		Class:  class,
		Method: method,
		URL:    c.baseURL + path,
		Query:  params,
		Header: http.Header{
			"Authorization": {"Bearer " + c.apiKey},
			"X-Store-Id":    {c.storeID},
		},
		Body: body,
	}, out)
}

func pageParams(cursor string, limit int) url.Values {
	params := url.Values{}
	if limit <= 0 || limit > 100 {
		limit = defaultLimit
	}
	params.Set("limit", strconv.Itoa(limit))
	page := 1
	if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
		page = n
	}
	params.Set("page", strconv.Itoa(page))
	return params
}

func toDukaanStatus(status string) string {
	switch strings.ToUpper(status) {
	case string(models.ProductDraft), string(models.ProductArchived):
		return "inactive"
	default:
		return "active"
	}
}

func resourceType(event string) string {
	switch {
	case strings.HasPrefix(event, "product."):
		return clients.ResourceProduct
	case strings.HasPrefix(event, "order."):
		return clients.ResourceOrder
	case strings.HasPrefix(event, "inventory."):
		return clients.ResourceInventory
	default:
		return "unknown"
	}
}
