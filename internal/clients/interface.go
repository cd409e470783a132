package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-sync-service/internal/models"
)

// Adapter is the capability contract every marketplace integration implements.
// Fetches are cursor based; a zero Since means a full resync. Implementations
// must report failures using the apperrors taxonomy.
type Adapter interface {
	// Marketplace returns the marketplace type
	Marketplace() models.MarketplaceType

	// TestConnection verifies the credentials against the marketplace
	TestConnection(ctx context.Context) (bool, error)

	// Products
	FetchProducts(ctx context.Context, query *ProductQuery) (*ProductPage, error)
	CreateProduct(ctx context.Context, input *ProductInput) (*ExternalProduct, error)
	UpdateProduct(ctx context.Context, externalID string, update *ProductUpdate) (*ExternalProduct, error)

	// Inventory
	UpdateInventory(ctx context.Context, updates []InventoryUpdate) error

	// Orders
	FetchOrders(ctx context.Context, query *OrderQuery) (*OrderPage, error)
	CancelOrder(ctx context.Context, externalOrderID, reason string) error

	// Webhooks: verify the delivery and parse it into an event
	HandleWebhook(ctx context.Context, req *WebhookRequest) (*WebhookEvent, error)
}

// ProductFilter narrows a product fetch
type ProductFilter struct {
	Status string
	SKUs   []string
}

// ProductQuery contains product fetch options
type ProductQuery struct {
	Since  time.Time
	Cursor string
	Filter ProductFilter
	Limit  int
}

// OrderQuery contains order fetch options
type OrderQuery struct {
	Since  time.Time
	Cursor string
	Limit  int
}

// ProductPage contains one page of products
type ProductPage struct {
	Products   []ExternalProduct
	NextCursor string
	HasMore    bool
}

// OrderPage contains one page of orders
type OrderPage struct {
	Orders     []ExternalOrder
	NextCursor string
	HasMore    bool
}

// ProductInput describes a product to create on a marketplace
type ProductInput struct {
	SKU         string
	Title       string
	Description string
	Brand       string
	Barcode     string
	Status      string
	Price       decimal.Decimal
	RRP         *decimal.Decimal
	Currency    string
	Quantity    int
}

// ProductUpdate carries a partial update; nil fields are left untouched
type ProductUpdate struct {
	VariantID string
	SKU       string
	Price     *decimal.Decimal
	RRP       *decimal.Decimal
	Status    *string
	Title     *string
}

// IsEmpty reports whether no field is set
func (u *ProductUpdate) IsEmpty() bool {
	return u == nil || (u.Price == nil && u.RRP == nil && u.Status == nil && u.Title == nil)
}

// InventoryUpdate sets the available quantity of one listing
type InventoryUpdate struct {
	SKU             string
	ProductID       string
	VariantID       string
	InventoryItemID string
	LocationID      string
	Quantity        int
}

// ExternalProduct represents a product from an external marketplace
type ExternalProduct struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Vendor      string                 `json:"vendor,omitempty"`
	Brand       string                 `json:"brand,omitempty"`
	ProductType string                 `json:"productType,omitempty"`
	Status      string                 `json:"status"`
	Tags        []string               `json:"tags,omitempty"`
	Variants    []ExternalVariant      `json:"variants"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	RawData     map[string]interface{} `json:"rawData,omitempty"`

	// Product identifiers
	SKU     string `json:"sku,omitempty"`
	ASIN    string `json:"asin,omitempty"`
	Barcode string `json:"barcode,omitempty"`

	// Pricing and inventory for products without variants
	Price          float64  `json:"price,omitempty"`
	CompareAtPrice *float64 `json:"compareAtPrice,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	Quantity       int      `json:"quantity,omitempty"`
	LocationID     string   `json:"locationId,omitempty"`
}

// ExternalVariant represents a product variant from an external marketplace
type ExternalVariant struct {
	ID                string   `json:"id"`
	ProductID         string   `json:"productId"`
	Title             string   `json:"title"`
	SKU               string   `json:"sku"`
	Barcode           string   `json:"barcode,omitempty"`
	Price             float64  `json:"price"`
	CompareAtPrice    *float64 `json:"compareAtPrice,omitempty"`
	InventoryQuantity int      `json:"inventoryQuantity"`
	InventoryItemID   string   `json:"inventoryItemId,omitempty"`
	Position          int      `json:"position"`
}

// ExternalOrder represents an order from an external marketplace
type ExternalOrder struct {
	ID                string                 `json:"id"`
	OrderNumber       string                 `json:"orderNumber"`
	Email             string                 `json:"email,omitempty"`
	Currency          string                 `json:"currency"`
	TotalPrice        float64                `json:"totalPrice"`
	Status            string                 `json:"status,omitempty"`
	FinancialStatus   string                 `json:"financialStatus"`
	FulfillmentStatus string                 `json:"fulfillmentStatus"`
	LineItems         []ExternalLineItem     `json:"lineItems"`
	ShippingAddress   *ExternalAddress       `json:"shippingAddress,omitempty"`
	Customer          *ExternalCustomer      `json:"customer,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
	CancelledAt       *time.Time             `json:"cancelledAt,omitempty"`
	RawData           map[string]interface{} `json:"rawData,omitempty"`
}

// ExternalLineItem represents an order line item from an external marketplace
type ExternalLineItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId,omitempty"`
	VariantID string  `json:"variantId,omitempty"`
	Title     string  `json:"title"`
	SKU       string  `json:"sku,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// ExternalAddress represents an address from an external marketplace
type ExternalAddress struct {
	Name        string `json:"name,omitempty"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	Province    string `json:"province,omitempty"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode,omitempty"`
	Zip         string `json:"zip"`
	Phone       string `json:"phone,omitempty"`
}

// ExternalCustomer represents a customer from an external marketplace
type ExternalCustomer struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// WebhookRequest is a raw webhook delivery
type WebhookRequest struct {
	Headers http.Header
	Body    []byte
}

// Webhook resource types
const (
	ResourceProduct   = "product"
	ResourceOrder     = "order"
	ResourceInventory = "inventory"
)

// WebhookEvent represents a verified, parsed webhook event. Product or Order
// is set when the delivery embeds the full record.
type WebhookEvent struct {
	EventID      string                 `json:"eventId"`
	EventType    string                 `json:"eventType"`
	ResourceID   string                 `json:"resourceId"`
	ResourceType string                 `json:"resourceType"`
	Payload      map[string]interface{} `json:"payload"`
	Timestamp    time.Time              `json:"timestamp"`
	Product      *ExternalProduct       `json:"-"`
	Order        *ExternalOrder         `json:"-"`
}

// InventoryItemID returns the inventory item of the first variant
func (p *ExternalProduct) InventoryItemID() string {
	if len(p.Variants) == 0 {
		return ""
	}
	return p.Variants[0].InventoryItemID
}

// PayloadDecoder is implemented by adapters that can convert records in the
// marketplace's own JSON shape, as pushed by callers of the ingest endpoint.
type PayloadDecoder interface {
	DecodeProducts(data []byte) ([]ExternalProduct, error)
	DecodeOrders(data []byte) ([]ExternalOrder, error)
}
