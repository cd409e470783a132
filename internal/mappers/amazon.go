package mappers

import (
	"strings"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

// AmazonMapper maps SP-API listings keyed by seller SKU
type AmazonMapper struct{}

func (AmazonMapper) Marketplace() models.MarketplaceType { return models.MarketplaceAmazon }

func (m AmazonMapper) MapProduct(external *clients.ExternalProduct) (*CanonicalProduct, error) {
	p := &CanonicalProduct{
		ExternalID:    external.ID,
		SKU:           strings.TrimSpace(external.SKU),
		Name:          external.Title,
		Description:   external.Description,
		Brand:         external.Brand,
		Barcode:       external.Barcode,
		Status:        mapAmazonListingStatus(external.Status),
		Price:         money(external.Price),
		RRP:           moneyPtr(external.CompareAtPrice),
		Currency:      external.Currency,
		StockQuantity: external.Quantity,
		UpdatedAt:     external.UpdatedAt,
	}
	if p.ExternalID == "" {
		p.ExternalID = p.SKU
	}
	if err := validateProduct(m.Marketplace(), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m AmazonMapper) MapOrder(external *clients.ExternalOrder) (*CanonicalOrder, error) {
	o := baseOrder(external)
	o.PaymentStatus = mapPaymentStatus(external.FinancialStatus)
	o.FulfillmentStatus = mapFulfillmentStatus(external.FulfillmentStatus)
	o.Status = mapAmazonOrderStatus(external.Status)
	if err := validateOrder(m.Marketplace(), o); err != nil {
		return nil, err
	}
	return o, nil
}

func (AmazonMapper) FindDifferences(local *models.Product, incoming *CanonicalProduct) []FieldDiff {
	return FindDifferences(local, incoming)
}

func mapAmazonListingStatus(status string) models.ProductStatus {
	switch strings.ToUpper(status) {
	case "BUYABLE", "ACTIVE":
		return models.ProductActive
	case "DELETED", "ARCHIVED":
		return models.ProductArchived
	default:
		// DISCOVERABLE or INACTIVE listings are not for sale
		return models.ProductDraft
	}
}

func mapAmazonOrderStatus(status string) models.OrderStatus {
	statusMap := map[string]models.OrderStatus{
		"pending":    models.OrderPending,
		"processing": models.OrderProcessing,
		"shipped":    models.OrderShipped,
		"delivered":  models.OrderDelivered,
		"cancelled":  models.OrderCancelled,
	}
	if mapped, ok := statusMap[strings.ToLower(status)]; ok {
		return mapped
	}
	return models.OrderConfirmed
}
