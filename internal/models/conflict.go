package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/apperrors"
)

// ConflictStatus is the resolution state of a conflict
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "PENDING"
	ConflictResolved ConflictStatus = "RESOLVED"
	ConflictIgnored  ConflictStatus = "IGNORED"
)

// Conflict records a disagreement between canonical and marketplace values
// that sync policy refused to settle. Only the status may change, and only
// out of PENDING.
type Conflict struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        string          `gorm:"type:varchar(255);not null;index:idx_conflicts_tenant_status" json:"tenantId"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_conflicts_product" json:"productId"`
	ConnectionID    uuid.UUID       `gorm:"type:uuid;not null" json:"connectionId"`
	MarketplaceType MarketplaceType `gorm:"type:varchar(50);not null" json:"marketplaceId"`

	Field            string     `gorm:"type:varchar(100);not null" json:"field"`
	FieldGroup       FieldGroup `gorm:"type:varchar(30);not null" json:"fieldGroup"`
	LocalValue       string     `gorm:"type:text" json:"localValue"`
	MarketplaceValue string     `gorm:"type:text" json:"marketplaceValue"`
	DetectedAt       time.Time  `gorm:"not null" json:"detectedAt"`

	Status         ConflictStatus `gorm:"type:varchar(20);not null;index:idx_conflicts_tenant_status" json:"resolutionStatus"`
	ResolvedAt     *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy     string         `gorm:"type:varchar(255)" json:"resolvedBy,omitempty"`
	ResolutionNote string         `gorm:"type:text" json:"resolutionNote,omitempty"`
}

// TableName specifies the table name for Conflict
func (Conflict) TableName() string {
	return "product_conflicts"
}

func (c *Conflict) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ConflictPending
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now()
	}
	return nil
}

// Resolve moves a pending conflict to RESOLVED
func (c *Conflict) Resolve(by, note string, at time.Time) error {
	return c.transition(ConflictResolved, by, note, at)
}

// Ignore moves a pending conflict to IGNORED
func (c *Conflict) Ignore(by, note string, at time.Time) error {
	return c.transition(ConflictIgnored, by, note, at)
}

func (c *Conflict) transition(to ConflictStatus, by, note string, at time.Time) error {
	if c.Status != ConflictPending {
		return apperrors.ErrInvalidConflictTransition
	}
	c.Status = to
	c.ResolvedAt = &at
	c.ResolvedBy = by
	c.ResolutionNote = note
	return nil
}
