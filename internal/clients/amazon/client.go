package amazon

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/secrets"
)

const (
	// Amazon SP-API regional endpoints
	naEndpoint = "https://sellingpartnerapi-na.amazon.com"
	euEndpoint = "https://sellingpartnerapi-eu.amazon.com"
	feEndpoint = "https://sellingpartnerapi-fe.amazon.com"

	// Amazon LWA token endpoint
	lwaTokenEndpoint = "https://api.amazon.com/auth/o2/token"

	listingsVersion = "2021-08-01"
	defaultPageSize = 20
	tokenSkew       = 5 * time.Minute
)

// DefaultBuckets follows the published SP-API usage plans
func DefaultBuckets() map[clients.BucketKey]clients.BucketConfig {
	mt := models.MarketplaceAmazon
	return map[clients.BucketKey]clients.BucketConfig{
		{Marketplace: mt, Class: clients.ClassRead}:      {BurstCapacity: 20, RestoreRatePerSecond: 0.0167},
		{Marketplace: mt, Class: clients.ClassWrite}:     {BurstCapacity: 10, RestoreRatePerSecond: 5},
		{Marketplace: mt, Class: clients.ClassInventory}: {BurstCapacity: 10, RestoreRatePerSecond: 5},
		{Marketplace: mt, Class: clients.ClassAuth}:      {BurstCapacity: 5, RestoreRatePerSecond: 1},
	}
}

// Client implements clients.Adapter for the Amazon Selling Partner API
type Client struct {
	transport     *clients.Transport
	baseURL       string
	tokenURL      string
	clientID      string
	clientSecret  string
	refreshToken  string
	sellerID      string
	marketplaceID string
	webhookSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	now         func() time.Time
}

// New creates an Amazon adapter from connection credentials
func New(creds secrets.Credentials, deps clients.Deps) (clients.Adapter, error) {
	for _, key := range []string{"client_id", "client_secret", "refresh_token", "seller_id", "marketplace_id"} {
		if creds.Get(key) == "" {
			return nil, apperrors.New(apperrors.KindValidation, "amazon.new", "missing %s", key)
		}
	}

	c := &Client{
		transport:     clients.NewTransport(models.MarketplaceAmazon, deps),
		baseURL:       getRegionalEndpoint(creds.Get("region")),
		tokenURL:      lwaTokenEndpoint,
		clientID:      creds.Get("client_id"),
		clientSecret:  creds.Get("client_secret"),
		refreshToken:  creds.Get("refresh_token"),
		sellerID:      creds.Get("seller_id"),
		marketplaceID: creds.Get("marketplace_id"),
		webhookSecret: creds.Get("webhook_secret"),
		accessToken:   creds.Get("access_token"),
		now:           time.Now,
	}
	if override := deps.BaseURL(models.MarketplaceAmazon, ""); override != "" {
		c.baseURL = override
		c.tokenURL = override + "/auth/o2/token"
	}
	if expiresAt := creds.Get("token_expires_at"); expiresAt != "" {
		c.tokenExpiry, _ = time.Parse(time.RFC3339, expiresAt)
	}
	return c, nil
}

// Marketplace returns the marketplace type
func (c *Client) Marketplace() models.MarketplaceType {
	return models.MarketplaceAmazon
}

// TestConnection exchanges the refresh token and reads marketplace participations
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	if _, err := c.do(ctx, "test_connection", clients.ClassAuth, http.MethodGet, "/sellers/v1/marketplaceParticipations", nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// token returns a valid LWA access token, refreshing it when close to expiry
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry.Add(-tokenSkew)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	_, err := c.transport.DoJSON(ctx, &clients.Request{
		Op:     "refresh_token",
		Class:  clients.ClassAuth,
		Method: http.MethodPost,
		URL:    c.tokenURL,
		Form:   form,
	}, &tokenResp)
	if err != nil {
		// LWA answers 400 invalid_grant for revoked refresh tokens
		if apperrors.KindOf(err) == apperrors.KindValidation {
			return "", apperrors.Wrap(apperrors.KindAuthentication, "refresh_token", err)
		}
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", apperrors.New(apperrors.KindAuthentication, "refresh_token", "empty access token in LWA response")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// FetchProducts searches the seller's listings updated since query.Since
func (c *Client) FetchProducts(ctx context.Context, query *clients.ProductQuery) (*clients.ProductPage, error) {
	params := url.Values{}
	params.Set("marketplaceIds", c.marketplaceID)
	params.Set("includedData", "summaries,offers,fulfillmentAvailability")
	params.Set("pageSize", strconv.Itoa(pageSize(query.Limit)))
	if query.Cursor != "" {
		params.Set("pageToken", query.Cursor)
	}
	if !query.Since.IsZero() {
		params.Set("lastUpdatedAfter", query.Since.UTC().Format(time.RFC3339))
	}
	if len(query.Filter.SKUs) > 0 {
		params.Set("identifiers", strings.Join(query.Filter.SKUs, ","))
		params.Set("identifiersType", "SKU")
	}

	var response listingsSearchResponse
	path := fmt.Sprintf("/listings/%s/items/%s", listingsVersion, url.PathEscape(c.sellerID))
	if _, err := c.do(ctx, "fetch_products", clients.ClassRead, http.MethodGet, path, params, nil, &response); err != nil {
		return nil, err
	}

	products := make([]clients.ExternalProduct, 0, len(response.Items))
	for _, item := range response.Items {
		product := c.convertListing(item)
		if query.Filter.Status != "" && !strings.EqualFold(product.Status, query.Filter.Status) {
			continue
		}
		products = append(products, product)
	}

	return &clients.ProductPage{
		Products:   products,
		NextCursor: response.Pagination.NextToken,
		HasMore:    response.Pagination.NextToken != "",
	}, nil
}

// CreateProduct puts a new listing for the seller SKU
func (c *Client) CreateProduct(ctx context.Context, input *clients.ProductInput) (*clients.ExternalProduct, error) {
	attributes := map[string]interface{}{
		"item_name":                []interface{}{c.attr(map[string]interface{}{"value": input.Title})},
		"purchasable_offer":        []interface{}{c.offer(input.Currency, input.Price.StringFixed(2))},
		"fulfillment_availability": []interface{}{availability(input.Quantity)},
	}
	if input.Brand != "" {
		attributes["brand"] = []interface{}{c.attr(map[string]interface{}{"value": input.Brand})}
	}
	if input.Description != "" {
		attributes["product_description"] = []interface{}{c.attr(map[string]interface{}{"value": input.Description})}
	}

	body := map[string]interface{}{
		"productType":  "PRODUCT",
		"requirements": "LISTING",
		"attributes":   attributes,
	}
	if err := c.submitListing(ctx, "create_product", http.MethodPut, input.SKU, body); err != nil {
		return nil, err
	}

	price, _ := input.Price.Float64()
	return &clients.ExternalProduct{
		ID:       input.SKU,
		SKU:      input.SKU,
		Title:    input.Title,
		Brand:    input.Brand,
		Status:   "BUYABLE",
		Price:    price,
		Currency: input.Currency,
		Quantity: input.Quantity,
	}, nil
}

// UpdateProduct patches the listing identified by seller SKU
func (c *Client) UpdateProduct(ctx context.Context, externalID string, update *clients.ProductUpdate) (*clients.ExternalProduct, error) {
	if update.IsEmpty() {
		return nil, apperrors.Wrap(apperrors.KindValidation, "update_product", apperrors.ErrNoUpdateFields)
	}

	sku := externalID
	if update.SKU != "" {
		sku = update.SKU
	}

	var patches []map[string]interface{}
	if update.Title != nil {
		patches = append(patches, patch("/attributes/item_name", c.attr(map[string]interface{}{"value": *update.Title})))
	}
	if update.Price != nil {
		patches = append(patches, patch("/attributes/purchasable_offer", c.offer("", update.Price.StringFixed(2))))
	}
	if update.RRP != nil {
		patches = append(patches, patch("/attributes/list_price", c.attr(map[string]interface{}{"value": update.RRP.StringFixed(2)})))
	}
	if update.Status != nil {
		// Archived and draft products are taken off sale with zero availability
		if !strings.EqualFold(*update.Status, string(models.ProductActive)) {
			patches = append(patches, patch("/attributes/fulfillment_availability", availability(0)))
		}
	}

	if len(patches) > 0 {
		body := map[string]interface{}{"productType": "PRODUCT", "patches": patches}
		if err := c.submitListing(ctx, "update_product", http.MethodPatch, sku, body); err != nil {
			return nil, err
		}
	}
	return c.getListing(ctx, sku)
}

// UpdateInventory patches fulfillment availability for each seller SKU
func (c *Client) UpdateInventory(ctx context.Context, updates []clients.InventoryUpdate) error {
	for _, u := range updates {
		if u.SKU == "" {
			return apperrors.New(apperrors.KindValidation, "update_inventory", "seller sku is required")
		}
		if u.Quantity < 0 {
			return apperrors.New(apperrors.KindValidation, "update_inventory", "negative quantity for sku %s", u.SKU)
		}
		body := map[string]interface{}{
			"productType": "PRODUCT",
			"patches":     []map[string]interface{}{patch("/attributes/fulfillment_availability", availability(u.Quantity))},
		}
		if err := c.submitListingClass(ctx, "update_inventory", clients.ClassInventory, http.MethodPatch, u.SKU, body); err != nil {
			return err
		}
	}
	return nil
}

// FetchOrders fetches orders updated since query.Since including their items
func (c *Client) FetchOrders(ctx context.Context, query *clients.OrderQuery) (*clients.OrderPage, error) {
	params := url.Values{}
	params.Set("MarketplaceIds", c.marketplaceID)
	if query.Cursor != "" {
		params.Set("NextToken", query.Cursor)
	} else {
		since := query.Since
		if since.IsZero() {
			// LastUpdatedAfter is mandatory; a full resync starts at the epoch
			since = time.Unix(0, 0)
		}
		params.Set("LastUpdatedAfter", since.UTC().Format(time.RFC3339))
	}
	if query.Limit > 0 {
		params.Set("MaxResultsPerPage", strconv.Itoa(query.Limit))
	}

	var response ordersResponse
	if _, err := c.do(ctx, "fetch_orders", clients.ClassRead, http.MethodGet, "/orders/v0/orders", params, nil, &response); err != nil {
		return nil, err
	}

	orders := make([]clients.ExternalOrder, 0, len(response.Payload.Orders))
	for _, o := range response.Payload.Orders {
		order := convertOrder(o)

		var items orderItemsResponse
		path := fmt.Sprintf("/orders/v0/orders/%s/orderItems", url.PathEscape(o.AmazonOrderID))
		if _, err := c.do(ctx, "fetch_order_items", clients.ClassRead, http.MethodGet, path, nil, nil, &items); err != nil {
			return nil, err
		}
		for _, item := range items.Payload.OrderItems {
			order.LineItems = append(order.LineItems, convertOrderItem(item))
		}
		orders = append(orders, order)
	}

	return &clients.OrderPage{
		Orders:     orders,
		NextCursor: response.Payload.NextToken,
		HasMore:    response.Payload.NextToken != "",
	}, nil
}

// CancelOrder submits an order acknowledgement feed with status Failure,
// which is how SP-API cancels a merchant-fulfilled order.
func (c *Client) CancelOrder(ctx context.Context, externalOrderID, reason string) error {
	var doc struct {
		FeedDocumentID string `json:"feedDocumentId"`
		URL            string `json:"url"`
	}
	if _, err := c.do(ctx, "cancel_order", clients.ClassWrite, http.MethodPost, "/feeds/2021-06-30/documents",
		nil, map[string]string{"contentType": "text/xml; charset=UTF-8"}, &doc); err != nil {
		return err
	}

	content := fmt.Sprintf(acknowledgementFeed, html.EscapeString(c.sellerID), html.EscapeString(externalOrderID), cancelReason(reason))
	if _, err := c.transport.Do(ctx, &clients.Request{
		Op:          "cancel_order",
		Class:       clients.ClassWrite,
		Method:      http.MethodPut,
		URL:         doc.URL,
		Raw:         []byte(content),
		ContentType: "text/xml; charset=UTF-8",
	}); err != nil {
		return err
	}

	body := map[string]interface{}{
		"feedType":            "POST_ORDER_ACKNOWLEDGEMENT_DATA",
		"marketplaceIds":      []string{c.marketplaceID},
		"inputFeedDocumentId": doc.FeedDocumentID,
	}
	_, err := c.do(ctx, "cancel_order", clients.ClassWrite, http.MethodPost, "/feeds/2021-06-30/feeds", nil, body, nil)
	return err
}

func (c *Client) getListing(ctx context.Context, sku string) (*clients.ExternalProduct, error) {
	params := url.Values{}
	params.Set("marketplaceIds", c.marketplaceID)
	params.Set("includedData", "summaries,offers,fulfillmentAvailability")

	var item listingItem
	path := fmt.Sprintf("/listings/%s/items/%s/%s", listingsVersion, url.PathEscape(c.sellerID), url.PathEscape(sku))
	if _, err := c.do(ctx, "get_product", clients.ClassRead, http.MethodGet, path, params, nil, &item); err != nil {
		return nil, err
	}
	product := c.convertListing(item)
	return &product, nil
}

func (c *Client) submitListing(ctx context.Context, op, method, sku string, body interface{}) error {
	return c.submitListingClass(ctx, op, clients.ClassWrite, method, sku, body)
}

func (c *Client) submitListingClass(ctx context.Context, op string, class clients.OperationClass, method, sku string, body interface{}) error {
	params := url.Values{}
	params.Set("marketplaceIds", c.marketplaceID)

	var response listingSubmission
	path := fmt.Sprintf("/listings/%s/items/%s/%s", listingsVersion, url.PathEscape(c.sellerID), url.PathEscape(sku))
	if _, err := c.do(ctx, op, class, method, path, params, body, &response); err != nil {
		return err
	}
	if response.Status == "INVALID" {
		msg := "listing submission rejected"
		if len(response.Issues) > 0 {
			msg = response.Issues[0].Message
		}
		return &apperrors.Error{Kind: apperrors.KindValidation, Op: op, Marketplace: string(models.MarketplaceAmazon), Err: fmt.Errorf("%s: %s", sku, msg)}
	}
	return nil
}

// do performs an authenticated SP-API request through the shared transport
func (c *Client) do(ctx context.Context, op string, class clients.OperationClass, method, path string, params url.Values, body, out interface{}) (*clients.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	return c.transport.DoJSON(ctx, &clients.Request{
		Op:     op,
		Class:  class,
		Method: method,
		URL:    c.baseURL + path,
		Query:  params,
		Header: http.Header{"X-Amz-Access-Token": {token}},
		Body:   body,
	}, out)
}

func (c *Client) attr(fields map[string]interface{}) map[string]interface{} {
	fields["marketplace_id"] = c.marketplaceID
	return fields
}

func (c *Client) offer(currency, amount string) map[string]interface{} {
	o := map[string]interface{}{
		"marketplace_id": c.marketplaceID,
		"our_price": []interface{}{map[string]interface{}{
			"schedule": []interface{}{map[string]interface{}{"value_with_tax": amount}},
		}},
	}
	if currency != "" {
		o["currency"] = currency
	}
	return o
}

func availability(quantity int) map[string]interface{} {
	return map[string]interface{}{
		"fulfillment_channel_code": "DEFAULT",
		"quantity":                 quantity,
	}
}

func patch(path string, value interface{}) map[string]interface{} {
	return map[string]interface{}{"op": "replace", "path": path, "value": []interface{}{value}}
}

func pageSize(limit int) int {
	if limit <= 0 || limit > 20 {
		return defaultPageSize
	}
	return limit
}

// getRegionalEndpoint returns the SP-API endpoint for a region
func getRegionalEndpoint(region string) string {
	switch strings.ToLower(region) {
	case "eu":
		return euEndpoint
	case "fe":
		return feEndpoint
	default:
		return naEndpoint
	}
}

func cancelReason(reason string) string {
	switch reason {
	case "NoInventory", "ShippingAddressUndeliverable", "CustomerExchange", "BuyerCanceled", "GeneralAdjustment", "CarrierCreditDecision", "RiskAssessmentInformationNotValid", "CarrierCoverageFailure", "CustomerReturn", "MerchandiseNotReceived":
		return reason
	default:
		return "GeneralAdjustment"
	}
}

const acknowledgementFeed = `<?xml version="1.0" encoding="UTF-8"?>
<AmazonEnvelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="amzn-envelope.xsd">
  <Header><DocumentVersion>1.01</DocumentVersion><MerchantIdentifier>%s</MerchantIdentifier></Header>
  <MessageType>OrderAcknowledgement</MessageType>
  <Message>
    <MessageID>1</MessageID>
    <OrderAcknowledgement>
      <AmazonOrderID>%s</AmazonOrderID>
      <StatusCode>Failure</StatusCode>
      <CancelReason>%s</CancelReason>
    </OrderAcknowledgement>
  </Message>
</AmazonEnvelope>`
