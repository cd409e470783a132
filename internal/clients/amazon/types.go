package amazon

import (
	"strconv"
	"strings"
	"time"

	"marketplace-sync-service/internal/clients"
)

type listingsSearchResponse struct {
	Items      []listingItem `json:"items"`
	Pagination struct {
		NextToken string `json:"nextToken,omitempty"`
	} `json:"pagination"`
}

type listingItem struct {
	SKU       string `json:"sku"`
	Summaries []struct {
		MarketplaceID   string    `json:"marketplaceId"`
		ASIN            string    `json:"asin"`
		ItemName        string    `json:"itemName"`
		Status          []string  `json:"status"`
		CreatedDate     time.Time `json:"createdDate"`
		LastUpdatedDate time.Time `json:"lastUpdatedDate"`
	} `json:"summaries"`
	Offers []struct {
		MarketplaceID string `json:"marketplaceId"`
		OfferType     string `json:"offerType"`
		Price         struct {
			CurrencyCode string `json:"currencyCode"`
			Amount       string `json:"amount"`
		} `json:"price"`
	} `json:"offers"`
	FulfillmentAvailability []struct {
		FulfillmentChannelCode string `json:"fulfillmentChannelCode"`
		Quantity               int    `json:"quantity"`
	} `json:"fulfillmentAvailability"`
}

type listingSubmission struct {
	SKU          string `json:"sku"`
	Status       string `json:"status"`
	SubmissionID string `json:"submissionId"`
	Issues       []struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"issues"`
}

type ordersResponse struct {
	Payload struct {
		Orders    []amazonOrder `json:"Orders"`
		NextToken string        `json:"NextToken,omitempty"`
	} `json:"payload"`
}

type amazonOrder struct {
	AmazonOrderID    string    `json:"AmazonOrderId"`
	PurchaseDate     time.Time `json:"PurchaseDate"`
	LastUpdateDate   time.Time `json:"LastUpdateDate"`
	OrderStatus      string    `json:"OrderStatus"`
	OrderTotal       money     `json:"OrderTotal"`
	BuyerInfo        struct {
		BuyerEmail string `json:"BuyerEmail"`
		BuyerName  string `json:"BuyerName"`
	} `json:"BuyerInfo"`
	ShippingAddress *struct {
		Name          string `json:"Name"`
		AddressLine1  string `json:"AddressLine1"`
		AddressLine2  string `json:"AddressLine2,omitempty"`
		City          string `json:"City"`
		StateOrRegion string `json:"StateOrRegion"`
		PostalCode    string `json:"PostalCode"`
		CountryCode   string `json:"CountryCode"`
		Phone         string `json:"Phone,omitempty"`
	} `json:"ShippingAddress,omitempty"`
}

type orderItemsResponse struct {
	Payload struct {
		OrderItems []amazonOrderItem `json:"OrderItems"`
	} `json:"payload"`
}

type amazonOrderItem struct {
	OrderItemID     string `json:"OrderItemId"`
	ASIN            string `json:"ASIN"`
	SellerSKU       string `json:"SellerSKU"`
	Title           string `json:"Title"`
	QuantityOrdered int    `json:"QuantityOrdered"`
	ItemPrice       money  `json:"ItemPrice"`
}

type money struct {
	Amount       string `json:"Amount"`
	CurrencyCode string `json:"CurrencyCode"`
}

func (m money) float() float64 {
	f, _ := strconv.ParseFloat(m.Amount, 64)
	return f
}

// convertListing maps a listing for this client's marketplace
func (c *Client) convertListing(item listingItem) clients.ExternalProduct {
	product := clients.ExternalProduct{
		ID:     item.SKU,
		SKU:    item.SKU,
		Status: "INACTIVE",
	}

	for _, s := range item.Summaries {
		if s.MarketplaceID != c.marketplaceID {
			continue
		}
		product.ASIN = s.ASIN
		product.Title = s.ItemName
		product.CreatedAt = s.CreatedDate
		product.UpdatedAt = s.LastUpdatedDate
		for _, status := range s.Status {
			if status == "BUYABLE" {
				product.Status = "BUYABLE"
			} else if status == "DISCOVERABLE" && product.Status != "BUYABLE" {
				product.Status = "DISCOVERABLE"
			}
		}
		break
	}

	for _, o := range item.Offers {
		if o.MarketplaceID == c.marketplaceID && (o.OfferType == "" || o.OfferType == "B2C") {
			product.Price, _ = strconv.ParseFloat(o.Price.Amount, 64)
			product.Currency = o.Price.CurrencyCode
			break
		}
	}

	for _, fa := range item.FulfillmentAvailability {
		if fa.FulfillmentChannelCode == "DEFAULT" {
			product.Quantity = fa.Quantity
			break
		}
	}
	return product
}

func convertOrder(o amazonOrder) clients.ExternalOrder {
	order := clients.ExternalOrder{
		ID:                o.AmazonOrderID,
		OrderNumber:       o.AmazonOrderID,
		Email:             o.BuyerInfo.BuyerEmail,
		Currency:          o.OrderTotal.CurrencyCode,
		TotalPrice:        o.OrderTotal.float(),
		Status:            mapOrderStatus(o.OrderStatus),
		FinancialStatus:   mapFinancialStatus(o.OrderStatus),
		FulfillmentStatus: mapFulfillmentStatus(o.OrderStatus),
		CreatedAt:         o.PurchaseDate,
		UpdatedAt:         o.LastUpdateDate,
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = o.PurchaseDate
	}
	if o.BuyerInfo.BuyerName != "" || o.BuyerInfo.BuyerEmail != "" {
		first, last, _ := strings.Cut(o.BuyerInfo.BuyerName, " ")
		order.Customer = &clients.ExternalCustomer{Email: o.BuyerInfo.BuyerEmail, FirstName: first, LastName: last}
	}
	if a := o.ShippingAddress; a != nil {
		order.ShippingAddress = &clients.ExternalAddress{
			Name:        a.Name,
			Address1:    a.AddressLine1,
			Address2:    a.AddressLine2,
			City:        a.City,
			Province:    a.StateOrRegion,
			Zip:         a.PostalCode,
			CountryCode: a.CountryCode,
			Phone:       a.Phone,
		}
	}
	return order
}

func convertOrderItem(item amazonOrderItem) clients.ExternalLineItem {
	line := clients.ExternalLineItem{
		ID:        item.OrderItemID,
		ProductID: item.ASIN,
		Title:     item.Title,
		SKU:       item.SellerSKU,
		Quantity:  item.QuantityOrdered,
	}
	// ItemPrice is the line total
	if item.QuantityOrdered > 0 {
		line.Price = item.ItemPrice.float() / float64(item.QuantityOrdered)
	}
	return line
}

func mapOrderStatus(status string) string {
	switch status {
	case "Pending", "PendingAvailability":
		return "pending"
	case "Unshipped", "PartiallyShipped":
		return "processing"
	case "Shipped", "InvoiceUnconfirmed":
		return "shipped"
	case "Canceled":
		return "cancelled"
	default:
		return strings.ToLower(status)
	}
}

func mapFinancialStatus(status string) string {
	switch status {
	case "Pending", "PendingAvailability":
		return "pending"
	case "Canceled":
		return "voided"
	default:
		return "paid"
	}
}

func mapFulfillmentStatus(status string) string {
	switch status {
	case "Shipped":
		return "fulfilled"
	case "PartiallyShipped":
		return "partial"
	default:
		return "unfulfilled"
	}
}
