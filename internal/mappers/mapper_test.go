package mappers

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

func float(f float64) *float64 { return &f }

func TestForMarketplace(t *testing.T) {
	for _, mt := range []models.MarketplaceType{models.MarketplaceShopify, models.MarketplaceAmazon, models.MarketplaceDukaan} {
		m, err := ForMarketplace(mt)
		require.NoError(t, err)
		assert.Equal(t, mt, m.Marketplace())
	}

	_, err := ForMarketplace("EBAY")
	assert.Equal(t, apperrors.KindUnsupportedMarketplace, apperrors.KindOf(err))
}

func TestShopifyMapProduct(t *testing.T) {
	p, err := ShopifyMapper{}.MapProduct(&clients.ExternalProduct{
		ID:             "1001",
		Title:          "Widget",
		Vendor:         "Acme",
		Status:         "draft",
		SKU:            "PROD-001",
		Price:          19.99,
		CompareAtPrice: float(24.99),
		Quantity:       25,
		LocationID:     "4001",
		Variants:       []clients.ExternalVariant{{ID: "2001", SKU: "PROD-001", InventoryItemID: "3001"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "PROD-001", p.SKU)
	assert.Equal(t, "Acme", p.Brand)
	assert.Equal(t, models.ProductDraft, p.Status)
	assert.Equal(t, "19.99", p.Price.StringFixed(2))
	require.NotNil(t, p.RRP)
	assert.Equal(t, "24.99", p.RRP.StringFixed(2))
	assert.Equal(t, 25, p.StockQuantity)
	assert.Equal(t, "2001", p.ExternalVariantID)
	assert.Equal(t, "3001", p.InventoryItemID)
	assert.Equal(t, "4001", p.LocationID)
}

func TestMapProductValidation(t *testing.T) {
	cases := map[string]clients.ExternalProduct{
		"missing sku":    {ID: "1", Title: "No SKU"},
		"missing id":     {SKU: "PROD-001"},
		"negative stock": {ID: "1", SKU: "PROD-001", Quantity: -3},
	}
	for name, external := range cases {
		t.Run(name, func(t *testing.T) {
			external := external
			_, err := DukaanMapper{}.MapProduct(&external)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}

func TestAmazonMapProductUsesSKUAsExternalID(t *testing.T) {
	p, err := AmazonMapper{}.MapProduct(&clients.ExternalProduct{SKU: "PROD-001", ASIN: "B000TEST", Status: "DISCOVERABLE", Price: 10})
	require.NoError(t, err)
	assert.Equal(t, "PROD-001", p.ExternalID)
	assert.Equal(t, models.ProductDraft, p.Status)
	assert.Equal(t, "PROD-001", p.Name)
	assert.Nil(t, p.RRP)
}

func TestMapOrder(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	o, err := ShopifyMapper{}.MapOrder(&clients.ExternalOrder{
		ID:                "555",
		OrderNumber:       "#1001",
		Currency:          "usd",
		TotalPrice:        39.98,
		FinancialStatus:   "paid",
		FulfillmentStatus: "fulfilled",
		Customer:          &clients.ExternalCustomer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		LineItems:         []clients.ExternalLineItem{{ID: "1", SKU: "PROD-001", Quantity: 2, Price: 19.99}},
		CreatedAt:         now,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderShipped, o.Status)
	assert.Equal(t, models.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, models.FulfillmentFulfilled, o.FulfillmentStatus)
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, "Ada Lovelace", o.CustomerName)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("39.98")))
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 2, o.Lines[0].Quantity)

	_, err = DukaanMapper{}.MapOrder(&clients.ExternalOrder{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestDukaanOrderStatus(t *testing.T) {
	o, err := DukaanMapper{}.MapOrder(&clients.ExternalOrder{ID: "o-1", Status: "rejected", FinancialStatus: "refunded"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, o.Status)
	assert.Equal(t, models.PaymentRefunded, o.PaymentStatus)
}

func TestFindDifferences(t *testing.T) {
	local := &models.Product{
		SKU:           "PROD-001",
		Name:          "Widget",
		Brand:         "Acme",
		Status:        models.ProductActive,
		Price:         decimal.RequireFromString("19.99"),
		RRP:           decimal.RequireFromString("24.99"),
		StockQuantity: 25,
	}
	incoming := &CanonicalProduct{
		SKU:           "PROD-001",
		Name:          "Widget",
		Status:        models.ProductActive,
		Price:         decimal.RequireFromString("17.5"),
		StockQuantity: 30,
	}

	diffs := FindDifferences(local, incoming)
	require.Len(t, diffs, 2)
	assert.Equal(t, FieldDiff{Field: FieldStockQuantity, Group: models.GroupStock, Local: "25", Incoming: "30"}, diffs[0])
	assert.Equal(t, FieldDiff{Field: FieldPrice, Group: models.GroupPrice, Local: "19.99", Incoming: "17.50"}, diffs[1])

	// unset rrp and brand are not reported as differences
	incoming.Price = local.Price
	incoming.StockQuantity = 25
	assert.Empty(t, FindDifferences(local, incoming))
}

func TestApplyValue(t *testing.T) {
	p := &models.Product{}
	require.NoError(t, ApplyValue(p, FieldPrice, "12.50"))
	require.NoError(t, ApplyValue(p, FieldStatus, "ARCHIVED"))
	assert.Equal(t, "12.50", p.Price.StringFixed(2))
	assert.Equal(t, models.ProductArchived, p.Status)

	assert.Error(t, ApplyValue(p, FieldPrice, "abc"))
	assert.Error(t, ApplyValue(p, FieldStockQuantity, "3"))
	assert.Equal(t, models.GroupPrice, GroupOf(FieldRRP))
}
