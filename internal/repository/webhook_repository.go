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

// WebhookRepository handles database operations for webhook events
type WebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create stores an accepted delivery. A repeated idempotency key fails with
// ErrDuplicateEvent.
func (r *WebhookRepository) Create(ctx context.Context, event *models.MarketplaceWebhookEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrDuplicateEvent
	}
	return err
}

// GetByID retrieves a webhook event by ID
func (r *WebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MarketplaceWebhookEvent, error) {
	var event models.MarketplaceWebhookEvent
	err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

// MarkProcessed marks a webhook event as processed
func (r *WebhookRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processErr error) error {
	updates := map[string]interface{}{
		"processed":    true,
		"processed_at": time.Now(),
	}
	if processErr != nil {
		updates["processing_error"] = processErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.MarketplaceWebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListByConnection retrieves a connection's webhook events, newest first
func (r *WebhookRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, opts ListOptions) ([]models.MarketplaceWebhookEvent, error) {
	var events []models.MarketplaceWebhookEvent
	err := opts.apply(r.db.WithContext(ctx).Where("connection_id = ?", connectionID)).
		Order("created_at DESC").
		Find(&events).Error
	return events, err
}

// ExistsWithIdempotencyKey checks if an event with the given idempotency key exists
func (r *WebhookRepository) ExistsWithIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MarketplaceWebhookEvent{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	return count > 0, err
}
