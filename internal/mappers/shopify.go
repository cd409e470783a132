package mappers

import (
	"strings"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

// ShopifyMapper maps Shopify products and orders. The first variant carries
// sku, price and compare_at_price.
type ShopifyMapper struct{}

func (ShopifyMapper) Marketplace() models.MarketplaceType { return models.MarketplaceShopify }

func (m ShopifyMapper) MapProduct(external *clients.ExternalProduct) (*CanonicalProduct, error) {
	p := &CanonicalProduct{
		ExternalID:    external.ID,
		LocationID:    external.LocationID,
		SKU:           strings.TrimSpace(external.SKU),
		Name:          external.Title,
		Description:   external.Description,
		Brand:         external.Vendor,
		Barcode:       external.Barcode,
		Status:        mapShopifyProductStatus(external.Status),
		Price:         money(external.Price),
		RRP:           moneyPtr(external.CompareAtPrice),
		Currency:      external.Currency,
		StockQuantity: external.Quantity,
		UpdatedAt:     external.UpdatedAt,
	}
	if len(external.Variants) > 0 {
		v := external.Variants[0]
		p.ExternalVariantID = v.ID
		p.InventoryItemID = v.InventoryItemID
		if p.SKU == "" {
			p.SKU = strings.TrimSpace(v.SKU)
		}
	}
	if err := validateProduct(m.Marketplace(), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m ShopifyMapper) MapOrder(external *clients.ExternalOrder) (*CanonicalOrder, error) {
	o := baseOrder(external)
	o.PaymentStatus = mapPaymentStatus(external.FinancialStatus)
	o.FulfillmentStatus = mapFulfillmentStatus(external.FulfillmentStatus)
	o.Status = shopifyOrderStatus(external, o.PaymentStatus, o.FulfillmentStatus)
	if err := validateOrder(m.Marketplace(), o); err != nil {
		return nil, err
	}
	return o, nil
}

func (ShopifyMapper) FindDifferences(local *models.Product, incoming *CanonicalProduct) []FieldDiff {
	return FindDifferences(local, incoming)
}

func mapShopifyProductStatus(status string) models.ProductStatus {
	switch strings.ToLower(status) {
	case "draft":
		return models.ProductDraft
	case "archived":
		return models.ProductArchived
	default:
		return models.ProductActive
	}
}

// shopifyOrderStatus derives the lifecycle state; Shopify has no single order status field
func shopifyOrderStatus(o *clients.ExternalOrder, payment models.PaymentStatus, fulfillment models.FulfillmentStatus) models.OrderStatus {
	switch {
	case o.CancelledAt != nil || strings.EqualFold(o.Status, "cancelled"):
		return models.OrderCancelled
	case payment == models.PaymentRefunded:
		return models.OrderRefunded
	case fulfillment == models.FulfillmentFulfilled:
		return models.OrderShipped
	case fulfillment == models.FulfillmentPartial:
		return models.OrderProcessing
	case payment == models.PaymentPaid:
		return models.OrderConfirmed
	default:
		return models.OrderPending
	}
}
