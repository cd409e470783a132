package services

import (
	"context"
	"time"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/secrets"
)

// Notification events
const (
	EventLowStock          = "inventory.low_stock"
	EventConflictDetected  = "product.conflict_detected"
	EventSyncCompleted     = "sync.completed"
	EventSyncFailed        = "sync.failed"
	EventConnectionInvalid = "connection.invalid_credentials"
)

// CreditLedger charges tenants for metered operations. Deduct fails with an
// InsufficientCredits error when the balance is too low.
type CreditLedger interface {
	Deduct(ctx context.Context, tenantID string, amount int, reason string) error
}

// Notifier dispatches tenant notifications
type Notifier interface {
	Notify(ctx context.Context, tenantID, event string, payload map[string]interface{}) error
}

// SeenSet remembers keys for a while. MarkIfNew reports whether key was absent.
type SeenSet interface {
	MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// DistributedLock is a lease shared between service instances
type DistributedLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// AdapterProvider hands out marketplace adapters for a set of credentials
type AdapterProvider interface {
	Supports(mt models.MarketplaceType) bool
	Get(ctx context.Context, mt models.MarketplaceType, creds secrets.Credentials) (clients.Adapter, error)
	Evict(mt models.MarketplaceType, creds secrets.Credentials)
}
