package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductStatus is the canonical listing status
type ProductStatus string

const (
	ProductActive   ProductStatus = "ACTIVE"
	ProductDraft    ProductStatus = "DRAFT"
	ProductArchived ProductStatus = "ARCHIVED"
)

// Product is the tenant's canonical catalog entry. StockQuantity is always
// the sum of QuantityOnHand over the product's stock levels.
type Product struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_tenant_sku" json:"tenantId"`
	SKU      string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_tenant_sku" json:"sku"`

	Name        string        `gorm:"type:varchar(500);not null" json:"name"`
	Description string        `gorm:"type:text" json:"description,omitempty"`
	Brand       string        `gorm:"type:varchar(255)" json:"brand,omitempty"`
	Barcode     string        `gorm:"type:varchar(100)" json:"barcode,omitempty"`
	Status      ProductStatus `gorm:"type:varchar(30);not null" json:"status"`

	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	RRP      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"rrp"`
	Currency string          `gorm:"type:varchar(3)" json:"currency,omitempty"`

	StockQuantity int `gorm:"not null" json:"stockQuantity"`

	// Optimistic lock for read-modify-write updates
	Version int64 `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	MarketplaceReferences []ProductMarketplaceReference `gorm:"foreignKey:ProductID" json:"marketplaceReferences,omitempty"`
	Conflicts             []Conflict                    `gorm:"foreignKey:ProductID" json:"conflicts,omitempty"`
}

// TableName specifies the table name for Product
func (Product) TableName() string {
	return "products"
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Status == "" {
		p.Status = ProductActive
	}
	return nil
}

// ReferenceFor returns the product's reference on a connection, if linked
func (p *Product) ReferenceFor(connectionID uuid.UUID) *ProductMarketplaceReference {
	for i := range p.MarketplaceReferences {
		if p.MarketplaceReferences[i].ConnectionID == connectionID {
			return &p.MarketplaceReferences[i]
		}
	}
	return nil
}
