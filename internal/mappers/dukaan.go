package mappers

import (
	"strings"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

// DukaanMapper maps Dukaan products; selling_price is the price and
// original_price the RRP.
type DukaanMapper struct{}

func (DukaanMapper) Marketplace() models.MarketplaceType { return models.MarketplaceDukaan }

func (m DukaanMapper) MapProduct(external *clients.ExternalProduct) (*CanonicalProduct, error) {
	p := &CanonicalProduct{
		ExternalID:    external.ID,
		SKU:           strings.TrimSpace(external.SKU),
		Name:          external.Title,
		Description:   external.Description,
		Brand:         external.Brand,
		Barcode:       external.Barcode,
		Status:        mapDukaanProductStatus(external.Status),
		Price:         money(external.Price),
		RRP:           moneyPtr(external.CompareAtPrice),
		Currency:      external.Currency,
		StockQuantity: external.Quantity,
		UpdatedAt:     external.UpdatedAt,
	}
	if len(external.Variants) > 0 {
		p.ExternalVariantID = external.Variants[0].ID
	}
	if err := validateProduct(m.Marketplace(), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m DukaanMapper) MapOrder(external *clients.ExternalOrder) (*CanonicalOrder, error) {
	o := baseOrder(external)
	o.PaymentStatus = mapPaymentStatus(external.FinancialStatus)
	o.FulfillmentStatus = mapFulfillmentStatus(external.FulfillmentStatus)
	o.Status = mapDukaanOrderStatus(external.Status)
	if err := validateOrder(m.Marketplace(), o); err != nil {
		return nil, err
	}
	return o, nil
}

func (DukaanMapper) FindDifferences(local *models.Product, incoming *CanonicalProduct) []FieldDiff {
	return FindDifferences(local, incoming)
}

func mapDukaanProductStatus(status string) models.ProductStatus {
	switch strings.ToLower(status) {
	case "inactive", "hidden", "draft":
		return models.ProductDraft
	case "deleted", "archived":
		return models.ProductArchived
	default:
		return models.ProductActive
	}
}

func mapDukaanOrderStatus(status string) models.OrderStatus {
	statusMap := map[string]models.OrderStatus{
		"pending":    models.OrderPending,
		"confirmed":  models.OrderConfirmed,
		"accepted":   models.OrderConfirmed,
		"processing": models.OrderProcessing,
		"packed":     models.OrderProcessing,
		"shipped":    models.OrderShipped,
		"delivered":  models.OrderDelivered,
		"cancelled":  models.OrderCancelled,
		"rejected":   models.OrderCancelled,
		"returned":   models.OrderRefunded,
	}
	if mapped, ok := statusMap[strings.ToLower(status)]; ok {
		return mapped
	}
	return models.OrderPending
}
