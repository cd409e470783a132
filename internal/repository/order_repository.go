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

// OrderRepository handles canonical orders imported from marketplaces
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByMarketplaceOrderID retrieves an order by its natural key
func (r *OrderRepository) GetByMarketplaceOrderID(ctx context.Context, tenantID string, marketplaceType models.MarketplaceType, marketplaceOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace_type = ? AND marketplace_order_id = ?", tenantID, marketplaceType, marketplaceOrderID).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// GetByID retrieves a tenant's order with its lines
func (r *OrderRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("tenant_id = ?", tenantID).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// Create inserts an order with its lines. A concurrent import of the same
// marketplace order fails with ErrConcurrentModification.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrConcurrentModification
	}
	return err
}

// UpdateStatuses overwrites the lifecycle fields of an existing order
func (r *OrderRepository) UpdateStatuses(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":                 order.Status,
			"payment_status":         order.PaymentStatus,
			"fulfillment_status":     order.FulfillmentStatus,
			"marketplace_updated_at": order.MarketplaceUpdatedAt,
			"updated_at":             time.Now(),
		}).Error
}

// OrderFilter narrows an order listing
type OrderFilter struct {
	ConnectionID *uuid.UUID
	Status       models.OrderStatus
	ListOptions
}

// List retrieves a tenant's orders, most recently placed first
func (r *OrderRepository) List(ctx context.Context, tenantID string, filter OrderFilter) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("tenant_id = ?", tenantID)
	if filter.ConnectionID != nil {
		query = query.Where("connection_id = ?", *filter.ConnectionID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := filter.apply(query).Order("placed_at DESC").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
