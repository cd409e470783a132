package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncDirection decides which side is authoritative for a field group
type SyncDirection string

const (
	DirectionNone            SyncDirection = "NONE"
	DirectionFromMarketplace SyncDirection = "FROM_MARKETPLACE"
	DirectionToMarketplace   SyncDirection = "TO_MARKETPLACE"
	DirectionBoth            SyncDirection = "BOTH"
)

// IsValid reports whether d is a known direction
func (d SyncDirection) IsValid() bool {
	switch d {
	case DirectionNone, DirectionFromMarketplace, DirectionToMarketplace, DirectionBoth:
		return true
	default:
		return false
	}
}

// FieldGroup groups canonical product fields that share a sync direction
type FieldGroup string

const (
	GroupStock       FieldGroup = "stock"
	GroupPrice       FieldGroup = "price"
	GroupProductData FieldGroup = "productData"
)

// SyncConfig is the per-connection sync policy, read on every ingestion cycle
type SyncConfig struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"connectionId"`
	TenantID     string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`

	SyncEnabled bool `json:"syncEnabled"`

	StockDirection       SyncDirection `gorm:"type:varchar(30);not null" json:"stockDirection"`
	PriceDirection       SyncDirection `gorm:"type:varchar(30);not null" json:"priceDirection"`
	ProductDataDirection SyncDirection `gorm:"type:varchar(30);not null" json:"productDataDirection"`

	CreateProducts bool `json:"createProducts"`
	LogConflicts   bool `json:"logConflicts"`

	DefaultWarehouseID *uuid.UUID `gorm:"type:uuid" json:"defaultWarehouseId,omitempty"`
	// marketplace location id -> warehouse id
	WarehouseMappings JSONB `gorm:"type:jsonb" json:"warehouseMappings,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for SyncConfig
func (SyncConfig) TableName() string {
	return "marketplace_sync_configs"
}

func (c *SyncConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DefaultSyncConfig returns the policy applied when a connection has none:
// stock and product status follow the marketplace, price is not synced.
func DefaultSyncConfig(tenantID string, connectionID uuid.UUID) *SyncConfig {
	return &SyncConfig{
		ConnectionID:         connectionID,
		TenantID:             tenantID,
		SyncEnabled:          true,
		StockDirection:       DirectionFromMarketplace,
		PriceDirection:       DirectionNone,
		ProductDataDirection: DirectionFromMarketplace,
		CreateProducts:       true,
		LogConflicts:         true,
		WarehouseMappings:    JSONB{},
	}
}

// DirectionFor returns the configured direction for a field group
func (c *SyncConfig) DirectionFor(group FieldGroup) SyncDirection {
	switch group {
	case GroupStock:
		return c.StockDirection
	case GroupPrice:
		return c.PriceDirection
	case GroupProductData:
		return c.ProductDataDirection
	default:
		return DirectionNone
	}
}

// WarehouseFor returns the warehouse mapped to a marketplace location
func (c *SyncConfig) WarehouseFor(locationID string) (uuid.UUID, bool) {
	if locationID != "" {
		if id, err := uuid.Parse(c.WarehouseMappings.String(locationID)); err == nil {
			return id, true
		}
	}
	if c.DefaultWarehouseID != nil {
		return *c.DefaultWarehouseID, true
	}
	return uuid.Nil, false
}
