package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultWarehouseCode is used when a tenant has no warehouse yet
const DefaultWarehouseCode = "DEFAULT"

// Warehouse is a stock location. At most one active warehouse per tenant is default.
type Warehouse struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_warehouses_tenant_code" json:"tenantId"`
	Code      string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_warehouses_tenant_code" json:"code"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	IsDefault bool      `json:"isDefault"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Warehouse
func (Warehouse) TableName() string {
	return "warehouses"
}

func (w *Warehouse) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// StockLevel is the quantity of one product held in one warehouse
type StockLevel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_levels_product_warehouse" json:"productId"`
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_levels_product_warehouse" json:"warehouseId"`

	QuantityOnHand    int `gorm:"not null" json:"quantityOnHand"`
	QuantityAllocated int `gorm:"not null" json:"quantityAllocated"`
	ReorderPoint      int `gorm:"not null" json:"reorderPoint"`
	ReorderQuantity   int `gorm:"not null" json:"reorderQuantity"`

	Version int64 `gorm:"not null;default:1" json:"version"`

	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for StockLevel
func (StockLevel) TableName() string {
	return "stock_levels"
}

func (s *StockLevel) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// QuantityAvailable returns on-hand minus allocated
func (s *StockLevel) QuantityAvailable() int {
	return s.QuantityOnHand - s.QuantityAllocated
}

// IsLowStock reports whether available stock dropped below the reorder point
func (s *StockLevel) IsLowStock() bool {
	return s.QuantityAvailable() < s.ReorderPoint
}

// InventorySource represents the source of an inventory change
type InventorySource string

const (
	SourceMarketplace InventorySource = "MARKETPLACE"
	SourceManual      InventorySource = "MANUAL"
	SourceWebhook     InventorySource = "WEBHOOK"
)

// InventoryLedger is the audit trail of on-hand overwrites
type InventoryLedger struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     string    `gorm:"type:varchar(255);not null;index:idx_inventory_ledgers_tenant" json:"tenantId"`
	ProductID    uuid.UUID `gorm:"type:uuid;not null;index:idx_inventory_ledgers_product" json:"productId"`
	WarehouseID  uuid.UUID `gorm:"type:uuid;not null" json:"warehouseId"`
	StockLevelID uuid.UUID `gorm:"type:uuid;not null" json:"stockLevelId"`

	QuantityChange int `gorm:"not null" json:"quantityChange"`
	QuantityBefore int `gorm:"not null" json:"quantityBefore"`
	QuantityAfter  int `gorm:"not null" json:"quantityAfter"`

	Source             InventorySource `gorm:"type:varchar(50);not null" json:"source"`
	SourceConnectionID *uuid.UUID      `gorm:"type:uuid" json:"sourceConnectionId,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_inventory_ledgers_created" json:"createdAt"`
}

// TableName specifies the table name for InventoryLedger
func (InventoryLedger) TableName() string {
	return "inventory_ledgers"
}

// NewInventoryLedgerEntry records an on-hand change for one stock level
func NewInventoryLedgerEntry(level *StockLevel, before int, source InventorySource, connectionID *uuid.UUID) *InventoryLedger {
	return &InventoryLedger{
		ID:                 uuid.New(),
		TenantID:           level.TenantID,
		ProductID:          level.ProductID,
		WarehouseID:        level.WarehouseID,
		StockLevelID:       level.ID,
		QuantityChange:     level.QuantityOnHand - before,
		QuantityBefore:     before,
		QuantityAfter:      level.QuantityOnHand,
		Source:             source,
		SourceConnectionID: connectionID,
		CreatedAt:          time.Now(),
	}
}
