// Package mappers converts marketplace records into canonical products and
// orders and computes field-level differences against the stored catalog.
package mappers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

// CanonicalProduct is a marketplace product in canonical terms
type CanonicalProduct struct {
	ExternalID        string
	ExternalVariantID string
	InventoryItemID   string
	LocationID        string

	SKU         string
	Name        string
	Description string
	Brand       string
	Barcode     string
	Status      models.ProductStatus

	Price    decimal.Decimal
	RRP      *decimal.Decimal
	Currency string

	StockQuantity int
	UpdatedAt     time.Time
}

// CanonicalOrderLine is one order line in canonical terms
type CanonicalOrderLine struct {
	ExternalLineID string
	SKU            string
	Title          string
	Quantity       int
	UnitPrice      decimal.Decimal
}

// CanonicalOrder is a marketplace order in canonical terms
type CanonicalOrder struct {
	MarketplaceOrderID string
	OrderNumber        string
	Status             models.OrderStatus
	PaymentStatus      models.PaymentStatus
	FulfillmentStatus  models.FulfillmentStatus
	Currency           string
	TotalAmount        decimal.Decimal
	CustomerName       string
	CustomerEmail      string
	ShippingAddress    models.JSONB
	PlacedAt           time.Time
	UpdatedAt          time.Time
	Lines              []CanonicalOrderLine
}

// Mapper converts one marketplace's records
type Mapper interface {
	Marketplace() models.MarketplaceType
	MapProduct(external *clients.ExternalProduct) (*CanonicalProduct, error)
	MapOrder(external *clients.ExternalOrder) (*CanonicalOrder, error)
	FindDifferences(local *models.Product, incoming *CanonicalProduct) []FieldDiff
}

// ForMarketplace returns the mapper for a marketplace
func ForMarketplace(mt models.MarketplaceType) (Mapper, error) {
	switch mt {
	case models.MarketplaceShopify:
		return ShopifyMapper{}, nil
	case models.MarketplaceAmazon:
		return AmazonMapper{}, nil
	case models.MarketplaceDukaan:
		return DukaanMapper{}, nil
	default:
		return nil, apperrors.UnsupportedMarketplace(string(mt))
	}
}

// validateProduct enforces the fields every canonical product needs
func validateProduct(mt models.MarketplaceType, p *CanonicalProduct) error {
	switch {
	case strings.TrimSpace(p.ExternalID) == "":
		return invalid(mt, "map_product", "missing external id for sku %q", p.SKU)
	case strings.TrimSpace(p.SKU) == "":
		return invalid(mt, "map_product", "missing sku for product %s", p.ExternalID)
	case p.StockQuantity < 0:
		return invalid(mt, "map_product", "negative stock %d for sku %s", p.StockQuantity, p.SKU)
	case p.Price.IsNegative():
		return invalid(mt, "map_product", "negative price for sku %s", p.SKU)
	}
	if p.Name == "" {
		p.Name = p.SKU
	}
	return nil
}

func validateOrder(mt models.MarketplaceType, o *CanonicalOrder) error {
	if strings.TrimSpace(o.MarketplaceOrderID) == "" {
		return invalid(mt, "map_order", "missing order id")
	}
	for _, line := range o.Lines {
		if line.Quantity < 0 {
			return invalid(mt, "map_order", "negative quantity on order %s", o.MarketplaceOrderID)
		}
	}
	return nil
}

func invalid(mt models.MarketplaceType, op, format string, args ...interface{}) error {
	err := apperrors.New(apperrors.KindValidation, op, format, args...)
	err.Marketplace = string(mt)
	return err
}

// money converts marketplace floats to two-decimal amounts
func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func moneyPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := money(*f)
	return &d
}

// baseOrder maps the fields every marketplace shares
func baseOrder(o *clients.ExternalOrder) *CanonicalOrder {
	order := &CanonicalOrder{
		MarketplaceOrderID: o.ID,
		OrderNumber:        o.OrderNumber,
		Currency:           strings.ToUpper(o.Currency),
		TotalAmount:        money(o.TotalPrice),
		CustomerEmail:      o.Email,
		PlacedAt:           o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if order.OrderNumber == "" {
		order.OrderNumber = o.ID
	}
	if o.Customer != nil {
		order.CustomerName = strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
		if order.CustomerEmail == "" {
			order.CustomerEmail = o.Customer.Email
		}
	}
	if a := o.ShippingAddress; a != nil {
		order.ShippingAddress = models.JSONB{
			"name":        a.Name,
			"address1":    a.Address1,
			"address2":    a.Address2,
			"city":        a.City,
			"province":    a.Province,
			"country":     a.Country,
			"countryCode": a.CountryCode,
			"zip":         a.Zip,
			"phone":       a.Phone,
		}
		if order.CustomerName == "" {
			order.CustomerName = a.Name
		}
	}
	for _, item := range o.LineItems {
		order.Lines = append(order.Lines, CanonicalOrderLine{
			ExternalLineID: item.ID,
			SKU:            item.SKU,
			Title:          item.Title,
			Quantity:       item.Quantity,
			UnitPrice:      money(item.Price),
		})
	}
	return order
}

func mapPaymentStatus(status string) models.PaymentStatus {
	statusMap := map[string]models.PaymentStatus{
		"pending":            models.PaymentPending,
		"authorized":         models.PaymentPending,
		"paid":               models.PaymentPaid,
		"captured":           models.PaymentPaid,
		"partially_paid":     models.PaymentPending,
		"partially_refunded": models.PaymentPartiallyRefunded,
		"refunded":           models.PaymentRefunded,
		"voided":             models.PaymentFailed,
		"failed":             models.PaymentFailed,
	}
	if mapped, ok := statusMap[strings.ToLower(status)]; ok {
		return mapped
	}
	return models.PaymentPending
}

func mapFulfillmentStatus(status string) models.FulfillmentStatus {
	statusMap := map[string]models.FulfillmentStatus{
		"":            models.FulfillmentUnfulfilled,
		"unfulfilled": models.FulfillmentUnfulfilled,
		"partial":     models.FulfillmentPartial,
		"fulfilled":   models.FulfillmentFulfilled,
		"restocked":   models.FulfillmentReturned,
		"returned":    models.FulfillmentReturned,
	}
	if mapped, ok := statusMap[strings.ToLower(status)]; ok {
		return mapped
	}
	return models.FulfillmentUnfulfilled
}
