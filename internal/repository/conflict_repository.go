package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
)

// ConflictRepository handles product conflicts
type ConflictRepository struct {
	db *gorm.DB
}

// NewConflictRepository creates a new conflict repository
func NewConflictRepository(db *gorm.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// Create records a conflict
func (r *ConflictRepository) Create(ctx context.Context, conflict *models.Conflict) error {
	return r.db.WithContext(ctx).Create(conflict).Error
}

// PendingExists reports whether the same disagreement is already pending
func (r *ConflictRepository) PendingExists(ctx context.Context, productID, connectionID uuid.UUID, field, marketplaceValue string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Conflict{}).
		Where("product_id = ? AND connection_id = ? AND field = ? AND marketplace_value = ? AND status = ?",
			productID, connectionID, field, marketplaceValue, models.ConflictPending).
		Count(&count).Error
	return count > 0, err
}

// GetByID retrieves a tenant's conflict
func (r *ConflictRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Conflict, error) {
	var conflict models.Conflict
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&conflict, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conflict, nil
}

// SaveResolution persists a transition out of PENDING. It fails with
// ErrInvalidConflictTransition if the row is no longer pending.
func (r *ConflictRepository) SaveResolution(ctx context.Context, conflict *models.Conflict) error {
	result := r.db.WithContext(ctx).
		Model(&models.Conflict{}).
		Where("id = ? AND status = ?", conflict.ID, models.ConflictPending).
		Updates(map[string]interface{}{
			"status":          conflict.Status,
			"resolved_at":     conflict.ResolvedAt,
			"resolved_by":     conflict.ResolvedBy,
			"resolution_note": conflict.ResolutionNote,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrInvalidConflictTransition
	}
	return nil
}

// ConflictFilter narrows a conflict listing
type ConflictFilter struct {
	Status    models.ConflictStatus
	ProductID *uuid.UUID
	ListOptions
}

// List retrieves a tenant's conflicts, newest first
func (r *ConflictRepository) List(ctx context.Context, tenantID string, filter ConflictFilter) ([]models.Conflict, int64, error) {
	var conflicts []models.Conflict
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Conflict{}).Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := filter.apply(query).Order("detected_at DESC").Find(&conflicts).Error; err != nil {
		return nil, 0, err
	}
	return conflicts, total, nil
}
