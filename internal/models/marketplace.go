package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MarketplaceType represents the supported marketplace platforms
type MarketplaceType string

const (
	MarketplaceAmazon  MarketplaceType = "AMAZON"
	MarketplaceShopify MarketplaceType = "SHOPIFY"
	MarketplaceDukaan  MarketplaceType = "DUKAAN"
)

// IsValid reports whether t names a known marketplace
func (t MarketplaceType) IsValid() bool {
	switch t {
	case MarketplaceAmazon, MarketplaceShopify, MarketplaceDukaan:
		return true
	default:
		return false
	}
}

// AuthType describes how a connection authenticates against the marketplace
type AuthType string

const (
	AuthOAuth2      AuthType = "OAUTH2"
	AuthAccessToken AuthType = "ACCESS_TOKEN"
	AuthAPIKey      AuthType = "API_KEY"
)

// AuthTypeFor returns the auth scheme used by a marketplace
func AuthTypeFor(t MarketplaceType) AuthType {
	switch t {
	case MarketplaceAmazon:
		return AuthOAuth2
	case MarketplaceShopify:
		return AuthAccessToken
	default:
		return AuthAPIKey
	}
}

// ConnectionStatus represents the status of a marketplace connection
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionError        ConnectionStatus = "ERROR"
	ConnectionExpired      ConnectionStatus = "EXPIRED"
)

// JSONB custom type for PostgreSQL JSONB
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	if len(data) == 0 {
		*j = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(data, j)
}

// String returns the value at key as a string, or ""
func (j JSONB) String(key string) string {
	if j == nil {
		return ""
	}
	switch v := j[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// MarketplaceConnection is a tenant's authenticated link to one marketplace.
// At most one connection exists per (tenant, marketplace).
type MarketplaceConnection struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_mp_connections_tenant_type" json:"tenantId"`
	MarketplaceType MarketplaceType `gorm:"type:varchar(50);not null;uniqueIndex:idx_mp_connections_tenant_type" json:"marketplaceType"`
	DisplayName     string          `gorm:"type:varchar(255)" json:"displayName"`
	AuthType        AuthType        `gorm:"type:varchar(50);not null" json:"authType"`

	Status    ConnectionStatus `gorm:"type:varchar(50);not null;index:idx_mp_connections_status" json:"status"`
	IsEnabled bool             `json:"isEnabled"`

	ExternalStoreID string `gorm:"type:varchar(255)" json:"externalStoreId,omitempty"`

	// Opaque Credential Store reference, never raw secrets
	CredentialReference string     `gorm:"type:text;not null" json:"-"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty"`

	LastChecked  *time.Time `json:"lastChecked,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	LastError    string     `gorm:"type:text" json:"lastError,omitempty"`
	ErrorCount   int        `json:"errorCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `gorm:"type:varchar(255)" json:"createdBy,omitempty"`

	SyncConfig *SyncConfig `gorm:"foreignKey:ConnectionID" json:"syncConfig,omitempty"`
}

// TableName specifies the table name for MarketplaceConnection
func (MarketplaceConnection) TableName() string {
	return "marketplace_connections"
}

func (c *MarketplaceConnection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the orchestrator should sync this connection
func (c *MarketplaceConnection) IsActive() bool {
	return c.IsEnabled && c.Status != ConnectionDisconnected
}

// IsExpired reports whether the credentials have passed their expiry
func (c *MarketplaceConnection) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// MarketplaceWebhookEvent is an accepted, de-duplicated webhook delivery
type MarketplaceWebhookEvent struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_mp_webhook_connection" json:"connectionId"`
	TenantID        string          `gorm:"type:varchar(255);index:idx_mp_webhook_tenant" json:"tenantId"`
	MarketplaceType MarketplaceType `gorm:"type:varchar(50);not null" json:"marketplaceType"`

	EventID      string `gorm:"type:varchar(255);not null" json:"eventId"`
	EventType    string `gorm:"type:varchar(100);not null;index:idx_mp_webhook_event_type" json:"eventType"`
	ResourceType string `gorm:"type:varchar(50)" json:"resourceType,omitempty"`
	ResourceID   string `gorm:"type:varchar(255)" json:"resourceId,omitempty"`

	Payload JSONB `gorm:"type:jsonb" json:"payload"`

	Processed       bool       `gorm:"index:idx_mp_webhook_processed" json:"processed"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError,omitempty"`

	// Durable backstop for the short-lived seen-set
	IdempotencyKey string `gorm:"type:varchar(255);uniqueIndex:idx_mp_webhook_idempotency" json:"idempotencyKey"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for MarketplaceWebhookEvent
func (MarketplaceWebhookEvent) TableName() string {
	return "marketplace_webhook_events"
}

func (e *MarketplaceWebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// WebhookIdempotencyKey builds the de-duplication key for a delivery
func WebhookIdempotencyKey(marketplaceType MarketplaceType, eventID string) string {
	return fmt.Sprintf("%s-%s", marketplaceType, eventID)
}
