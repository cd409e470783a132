package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResourceEventVersion remembers the newest webhook applied to one
// marketplace resource, so a late redelivery of an older state is skipped
type ResourceEventVersion struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConnectionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_versions_resource"`
	ResourceType string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_event_versions_resource"`
	ResourceID   string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_event_versions_resource"`
	EventTime    time.Time `gorm:"not null"`
	LastEventID  string    `gorm:"type:varchar(255)"`
	UpdatedAt    time.Time
}

// TableName specifies the table name
func (ResourceEventVersion) TableName() string {
	return "marketplace_event_versions"
}

func (v *ResourceEventVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
