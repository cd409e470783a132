package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncRunStatus represents the outcome of one sync pass
type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "RUNNING"
	SyncRunCompleted SyncRunStatus = "COMPLETED"
	SyncRunPartial   SyncRunStatus = "PARTIAL"
	SyncRunFailed    SyncRunStatus = "FAILED"
)

// TriggerType represents what triggered the sync
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
	TriggerWebhook   TriggerType = "WEBHOOK"
	TriggerIngest    TriggerType = "INGEST"
)

// SyncRun records one sync pass over a connection
type SyncRun struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID uuid.UUID     `gorm:"type:uuid;not null;index:idx_sync_runs_connection" json:"connectionId"`
	TenantID     string        `gorm:"type:varchar(255);not null;index:idx_sync_runs_tenant" json:"tenantId"`
	TriggeredBy  TriggerType   `gorm:"type:varchar(30)" json:"triggeredBy"`
	Status       SyncRunStatus `gorm:"type:varchar(30);not null;index:idx_sync_runs_status" json:"status"`

	// Cursor used for the fetch and, on success, the new cursor
	CursorFrom *time.Time `json:"cursorFrom,omitempty"`
	CursorTo   *time.Time `json:"cursorTo,omitempty"`

	ProductsCreated   int `json:"productsCreated"`
	ProductsUpdated   int `json:"productsUpdated"`
	ProductsSkipped   int `json:"productsSkipped"`
	ProductsUnchanged int `json:"productsUnchanged"`
	OrdersCreated     int `json:"ordersCreated"`
	OrdersUpdated     int `json:"ordersUpdated"`
	Conflicts         int `json:"conflicts"`
	Errors            int `json:"errors"`

	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`
	ErrorDetails JSONB  `gorm:"type:jsonb" json:"errorDetails,omitempty"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "marketplace_sync_runs"
}

func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
