package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the canonical order lifecycle state
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

// PaymentStatus is tracked independently of the order status
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentFailed            PaymentStatus = "FAILED"
)

// FulfillmentStatus is the shipping sub-state of an order
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "UNFULFILLED"
	FulfillmentPartial     FulfillmentStatus = "PARTIAL"
	FulfillmentFulfilled   FulfillmentStatus = "FULFILLED"
	FulfillmentReturned    FulfillmentStatus = "RETURNED"
)

// Order is the canonical order, unique per (tenant, marketplace, marketplace order id)
type Order struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID           string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_tenant_marketplace_order" json:"tenantId"`
	MarketplaceType    MarketplaceType `gorm:"type:varchar(50);not null;uniqueIndex:idx_orders_tenant_marketplace_order" json:"marketplaceId"`
	MarketplaceOrderID string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_tenant_marketplace_order" json:"marketplaceOrderId"`
	ConnectionID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"connectionId"`
	OrderNumber        string          `gorm:"type:varchar(100)" json:"orderNumber,omitempty"`

	Status            OrderStatus       `gorm:"type:varchar(30);not null" json:"status"`
	PaymentStatus     PaymentStatus     `gorm:"type:varchar(30);not null" json:"paymentStatus"`
	FulfillmentStatus FulfillmentStatus `gorm:"type:varchar(30);not null" json:"fulfillmentStatus"`

	Currency      string          `gorm:"type:varchar(3)" json:"currency,omitempty"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalAmount"`
	CustomerName  string          `gorm:"type:varchar(255)" json:"customerName,omitempty"`
	CustomerEmail string          `gorm:"type:varchar(255)" json:"customerEmail,omitempty"`

	ShippingAddress JSONB `gorm:"type:jsonb" json:"shippingAddress,omitempty"`

	PlacedAt             *time.Time `json:"placedAt,omitempty"`
	MarketplaceUpdatedAt *time.Time `json:"marketplaceUpdatedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Lines []OrderLine `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderLine is a line item of a canonical order
type OrderLine struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"orderId"`
	ProductID      *uuid.UUID      `gorm:"type:uuid" json:"productId,omitempty"`
	ExternalLineID string          `gorm:"type:varchar(255)" json:"externalLineId,omitempty"`
	SKU            string          `gorm:"type:varchar(255)" json:"sku"`
	Title          string          `gorm:"type:varchar(500)" json:"title"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
}

// TableName specifies the table name for OrderLine
func (OrderLine) TableName() string {
	return "order_lines"
}

func (l *OrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
