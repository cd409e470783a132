package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductMarketplaceReference links a canonical product to its listing on one
// connection. Baseline holds the field values agreed at the last sync and is
// what bidirectional sync compares both sides against.
type ProductMarketplaceReference struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        string          `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_mp_refs_product" json:"productId"`
	ConnectionID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_mp_refs_connection_external" json:"connectionId"`
	MarketplaceType MarketplaceType `gorm:"type:varchar(50);not null" json:"marketplaceId"`

	MarketplaceProductID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_mp_refs_connection_external" json:"marketplaceProductId"`
	ExternalVariantID    string `gorm:"type:varchar(255)" json:"externalVariantId,omitempty"`
	InventoryItemID      string `gorm:"type:varchar(255)" json:"inventoryItemId,omitempty"`
	LocationID           string `gorm:"type:varchar(255)" json:"locationId,omitempty"`

	Baseline JSONB `gorm:"type:jsonb" json:"baseline,omitempty"`

	// Version guards baseline writes from concurrent ingestion and pushes
	Version int64 `gorm:"not null;default:1" json:"version"`

	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for ProductMarketplaceReference
func (ProductMarketplaceReference) TableName() string {
	return "product_marketplace_references"
}

func (r *ProductMarketplaceReference) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Version == 0 {
		r.Version = 1
	}
	return nil
}

// BaselineValue returns the last agreed value of a field
func (r *ProductMarketplaceReference) BaselineValue(field string) (string, bool) {
	if r == nil || r.Baseline == nil {
		return "", false
	}
	v, ok := r.Baseline[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetBaseline records the agreed value of a field
func (r *ProductMarketplaceReference) SetBaseline(field, value string) {
	if r.Baseline == nil {
		r.Baseline = JSONB{}
	}
	r.Baseline[field] = value
}
