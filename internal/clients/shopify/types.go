package shopify

import (
	"strconv"
	"strings"
	"time"

	"marketplace-sync-service/internal/clients"
)

type shopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Status      string           `json:"status"`
	Tags        string           `json:"tags"`
	Variants    []shopifyVariant `json:"variants"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type shopifyVariant struct {
	ID                int64   `json:"id"`
	ProductID         int64   `json:"product_id"`
	Title             string  `json:"title"`
	SKU               string  `json:"sku"`
	Barcode           string  `json:"barcode"`
	Price             string  `json:"price"`
	CompareAtPrice    *string `json:"compare_at_price"`
	InventoryQuantity int     `json:"inventory_quantity"`
	InventoryItemID   int64   `json:"inventory_item_id"`
	Position          int     `json:"position"`
}

type shopifyOrder struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Email             string            `json:"email"`
	Currency          string            `json:"currency"`
	TotalPrice        string            `json:"total_price"`
	FinancialStatus   string            `json:"financial_status"`
	FulfillmentStatus *string           `json:"fulfillment_status"`
	LineItems         []shopifyLineItem `json:"line_items"`
	ShippingAddress   *shopifyAddress   `json:"shipping_address"`
	Customer          *shopifyCustomer  `json:"customer"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CancelledAt       *time.Time        `json:"cancelled_at"`
}

type shopifyLineItem struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type shopifyAddress struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
	Phone       string `json:"phone"`
}

type shopifyCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// convertProduct flattens the first variant onto the product
func (c *Client) convertProduct(p shopifyProduct) clients.ExternalProduct {
	product := clients.ExternalProduct{
		ID:          formatID(p.ID),
		Title:       p.Title,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
		Brand:       p.Vendor,
		ProductType: p.ProductType,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		LocationID:  c.locationID,
	}
	if p.Tags != "" {
		product.Tags = strings.Split(p.Tags, ", ")
	}

	for _, v := range p.Variants {
		variant := clients.ExternalVariant{
			ID:                formatID(v.ID),
			ProductID:         formatID(v.ProductID),
			Title:             v.Title,
			SKU:               v.SKU,
			Barcode:           v.Barcode,
			InventoryQuantity: v.InventoryQuantity,
			InventoryItemID:   formatID(v.InventoryItemID),
			Position:          v.Position,
		}
		variant.Price, _ = strconv.ParseFloat(v.Price, 64)
		if v.CompareAtPrice != nil && *v.CompareAtPrice != "" {
			compareAt, _ := strconv.ParseFloat(*v.CompareAtPrice, 64)
			variant.CompareAtPrice = &compareAt
		}
		product.Variants = append(product.Variants, variant)
	}

	if len(product.Variants) > 0 {
		first := product.Variants[0]
		product.SKU = first.SKU
		product.Barcode = first.Barcode
		product.Price = first.Price
		product.CompareAtPrice = first.CompareAtPrice
		product.Quantity = first.InventoryQuantity
	}
	return product
}

func convertOrder(o shopifyOrder) clients.ExternalOrder {
	order := clients.ExternalOrder{
		ID:              formatID(o.ID),
		OrderNumber:     o.Name,
		Email:           o.Email,
		Currency:        o.Currency,
		FinancialStatus: o.FinancialStatus,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		CancelledAt:     o.CancelledAt,
	}
	if o.FulfillmentStatus != nil {
		order.FulfillmentStatus = *o.FulfillmentStatus
	}
	if o.CancelledAt != nil {
		order.Status = "cancelled"
	}
	order.TotalPrice, _ = strconv.ParseFloat(o.TotalPrice, 64)

	for _, item := range o.LineItems {
		line := clients.ExternalLineItem{
			ID:        formatID(item.ID),
			ProductID: formatID(item.ProductID),
			VariantID: formatID(item.VariantID),
			Title:     item.Title,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
		}
		line.Price, _ = strconv.ParseFloat(item.Price, 64)
		order.LineItems = append(order.LineItems, line)
	}

	if a := o.ShippingAddress; a != nil {
		order.ShippingAddress = &clients.ExternalAddress{
			Name:        strings.TrimSpace(a.FirstName + " " + a.LastName),
			Address1:    a.Address1,
			Address2:    a.Address2,
			City:        a.City,
			Province:    a.Province,
			Country:     a.Country,
			CountryCode: a.CountryCode,
			Zip:         a.Zip,
			Phone:       a.Phone,
		}
	}
	if cu := o.Customer; cu != nil {
		order.Customer = &clients.ExternalCustomer{
			ID:        formatID(cu.ID),
			Email:     cu.Email,
			FirstName: cu.FirstName,
			LastName:  cu.LastName,
		}
	}
	return order
}
