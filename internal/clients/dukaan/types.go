package dukaan

import (
	"strconv"
	"time"

	"marketplace-sync-service/internal/clients"
)

type pagination struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
}

func (p pagination) next() (string, bool) {
	if !p.HasNext {
		return "", false
	}
	return strconv.Itoa(p.CurrentPage + 1), true
}

type dukaanProduct struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Brand         string          `json:"brand"`
	SKU           string          `json:"sku"`
	Barcode       string          `json:"barcode"`
	SellingPrice  float64         `json:"selling_price"`
	OriginalPrice *float64        `json:"original_price"`
	Inventory     int             `json:"inventory"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	Variants      []dukaanVariant `json:"variants"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type dukaanVariant struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	SKU           string   `json:"sku"`
	SellingPrice  float64  `json:"selling_price"`
	OriginalPrice *float64 `json:"original_price"`
	Inventory     int      `json:"inventory"`
}

type dukaanOrder struct {
	ID              string           `json:"id"`
	OrderNumber     string           `json:"order_number"`
	Status          string           `json:"status"`
	PaymentStatus   string           `json:"payment_status"`
	Total           float64          `json:"total"`
	Currency        string           `json:"currency"`
	LineItems       []dukaanLineItem `json:"line_items"`
	Customer        dukaanCustomer   `json:"customer"`
	ShippingAddress *dukaanAddress   `json:"shipping_address"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type dukaanLineItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type dukaanCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type dukaanAddress struct {
	Name        string `json:"name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

func convertProduct(p dukaanProduct) clients.ExternalProduct {
	product := clients.ExternalProduct{
		ID:             p.ID,
		Title:          p.Name,
		Description:    p.Description,
		Brand:          p.Brand,
		Status:         p.Status,
		SKU:            p.SKU,
		Barcode:        p.Barcode,
		Price:          p.SellingPrice,
		CompareAtPrice: p.OriginalPrice,
		Currency:       p.Currency,
		Quantity:       p.Inventory,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}

	for _, v := range p.Variants {
		product.Variants = append(product.Variants, clients.ExternalVariant{
			ID:                v.ID,
			ProductID:         p.ID,
			Title:             v.Name,
			SKU:               v.SKU,
			Price:             v.SellingPrice,
			CompareAtPrice:    v.OriginalPrice,
			InventoryQuantity: v.Inventory,
		})
	}
	// Variant-only products carry sku and stock on the first variant
	if product.SKU == "" && len(p.Variants) > 0 {
		first := p.Variants[0]
		product.SKU = first.SKU
		product.Price = first.SellingPrice
		product.CompareAtPrice = first.OriginalPrice
		product.Quantity = first.Inventory
	}
	return product
}

func convertOrder(o dukaanOrder) clients.ExternalOrder {
	order := clients.ExternalOrder{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		Email:             o.Customer.Email,
		Currency:          o.Currency,
		TotalPrice:        o.Total,
		Status:            o.Status,
		FinancialStatus:   o.PaymentStatus,
		FulfillmentStatus: fulfillmentStatus(o.Status),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}

	for _, item := range o.LineItems {
		order.LineItems = append(order.LineItems, clients.ExternalLineItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Title:     item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	if o.Customer.ID != "" || o.Customer.Email != "" {
		order.Customer = &clients.ExternalCustomer{ID: o.Customer.ID, Email: o.Customer.Email, FirstName: o.Customer.Name}
	}
	if a := o.ShippingAddress; a != nil {
		order.ShippingAddress = &clients.ExternalAddress{
			Name:        a.Name,
			Address1:    a.Line1,
			Address2:    a.Line2,
			City:        a.City,
			Province:    a.State,
			Country:     a.Country,
			CountryCode: a.CountryCode,
			Zip:         a.Pincode,
			Phone:       a.Phone,
		}
	}
	return order
}

func fulfillmentStatus(status string) string {
	switch status {
	case "shipped", "delivered":
		return "fulfilled"
	case "returned":
		return "returned"
	default:
		return "unfulfilled"
	}
}
