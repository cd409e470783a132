package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
)

// ConnectionRepository handles database operations for marketplace connections
type ConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create creates a new marketplace connection. A second connection for the
// same tenant and marketplace fails with ErrConnectionExists.
func (r *ConnectionRepository) Create(ctx context.Context, connection *models.MarketplaceConnection) error {
	err := r.db.WithContext(ctx).Create(connection).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrConnectionExists
	}
	return err
}

// GetByID retrieves a connection by ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MarketplaceConnection, error) {
	var connection models.MarketplaceConnection
	err := r.db.WithContext(ctx).
		Preload("SyncConfig").
		First(&connection, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &connection, nil
}

// GetForTenant retrieves a connection owned by the tenant
func (r *ConnectionRepository) GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*models.MarketplaceConnection, error) {
	var connection models.MarketplaceConnection
	err := r.db.WithContext(ctx).
		Preload("SyncConfig").
		Where("tenant_id = ?", tenantID).
		First(&connection, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &connection, nil
}

// GetByTenantAndType retrieves the tenant's connection to a marketplace
func (r *ConnectionRepository) GetByTenantAndType(ctx context.Context, tenantID string, marketplaceType models.MarketplaceType) (*models.MarketplaceConnection, error) {
	var connection models.MarketplaceConnection
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace_type = ?", tenantID, marketplaceType).
		First(&connection).Error
	if err != nil {
		return nil, translate(err)
	}
	return &connection, nil
}

// ListByTenant retrieves connections for a tenant with pagination
func (r *ConnectionRepository) ListByTenant(ctx context.Context, tenantID string, opts ListOptions) ([]models.MarketplaceConnection, int64, error) {
	var connections []models.MarketplaceConnection
	var total int64

	query := r.db.WithContext(ctx).Model(&models.MarketplaceConnection{}).
		Where("tenant_id = ?", tenantID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := opts.apply(query).
		Preload("SyncConfig").
		Order("created_at DESC").
		Find(&connections).Error
	if err != nil {
		return nil, 0, err
	}
	return connections, total, nil
}

// ListSyncable returns enabled, not disconnected connections whose sync
// config is enabled or absent. An empty tenantID lists every tenant.
func (r *ConnectionRepository) ListSyncable(ctx context.Context, tenantID string) ([]models.MarketplaceConnection, error) {
	var connections []models.MarketplaceConnection

	query := r.db.WithContext(ctx).
		Joins("LEFT JOIN marketplace_sync_configs ON marketplace_sync_configs.connection_id = marketplace_connections.id").
		Where("marketplace_connections.is_enabled = ?", true).
		Where("marketplace_connections.status <> ?", models.ConnectionDisconnected).
		Where("(marketplace_sync_configs.id IS NULL OR marketplace_sync_configs.sync_enabled = ?)", true)
	if tenantID != "" {
		query = query.Where("marketplace_connections.tenant_id = ?", tenantID)
	}

	err := query.
		Preload("SyncConfig").
		Order("marketplace_connections.created_at ASC").
		Find(&connections).Error
	return connections, err
}

// Update updates an existing connection
func (r *ConnectionRepository) Update(ctx context.Context, connection *models.MarketplaceConnection) error {
	return r.db.WithContext(ctx).Omit("SyncConfig").Save(connection).Error
}

// UpdateCredentialReference points the connection at new credentials
func (r *ConnectionRepository) UpdateCredentialReference(ctx context.Context, id uuid.UUID, reference string, expiresAt *time.Time) error {
	return r.updates(ctx, id, map[string]interface{}{
		"credential_reference": reference,
		"expires_at":           expiresAt,
		"status":               models.ConnectionConnected,
		"last_error":           "",
	})
}

// RecordCheck stores the outcome of a connection test
func (r *ConnectionRepository) RecordCheck(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, lastError string, at time.Time) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":       status,
		"last_error":   lastError,
		"last_checked": at,
	})
}

// MarkSyncSucceeded advances the ingestion cursor and clears the error state
func (r *ConnectionRepository) MarkSyncSucceeded(ctx context.Context, id uuid.UUID, syncedAt time.Time) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":         models.ConnectionConnected,
		"last_error":     "",
		"last_synced_at": syncedAt,
	})
}

// MarkSyncFailed records a failed pass. The cursor is left untouched.
func (r *ConnectionRepository) MarkSyncFailed(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, lastError string) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":      status,
		"last_error":  lastError,
		"error_count": gorm.Expr("error_count + 1"),
	})
}

// Delete removes a connection and its sync config
func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.SyncConfig{}, "connection_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.MarketplaceConnection{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}

func (r *ConnectionRepository) updates(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.MarketplaceConnection{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
