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

// ProductRepository handles canonical products and their marketplace references
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID retrieves a tenant's product with its marketplace references
func (r *ProductRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("MarketplaceReferences").
		Where("tenant_id = ?", tenantID).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// GetBySKU retrieves a tenant's product by SKU
func (r *ProductRepository) GetBySKU(ctx context.Context, tenantID, sku string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("MarketplaceReferences").
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// GetByReference finds the product linked to a marketplace listing
func (r *ProductRepository) GetByReference(ctx context.Context, connectionID uuid.UUID, marketplaceProductID string) (*models.Product, error) {
	var ref models.ProductMarketplaceReference
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND marketplace_product_id = ?", connectionID, marketplaceProductID).
		First(&ref).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.GetByID(ctx, ref.TenantID, ref.ProductID)
}

// CreateWithReference creates a product together with its first reference
func (r *ProductRepository) CreateWithReference(ctx context.Context, product *models.Product, ref *models.ProductMarketplaceReference) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("MarketplaceReferences", "Conflicts").Create(product).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrConcurrentModification
			}
			return err
		}
		ref.ProductID = product.ID
		ref.TenantID = product.TenantID
		if err := tx.Create(ref).Error; err != nil {
			return err
		}
		product.MarketplaceReferences = append(product.MarketplaceReferences, *ref)
		return nil
	})
}

// UpdateFields writes the product's editable fields if its version is
// unchanged, then bumps the version.
func (r *ProductRepository) UpdateFields(ctx context.Context, product *models.Product) error {
	return r.compareAndSwap(ctx, product, map[string]interface{}{
		"name":        product.Name,
		"description": product.Description,
		"brand":       product.Brand,
		"barcode":     product.Barcode,
		"status":      product.Status,
		"price":       product.Price,
		"rrp":         product.RRP,
		"currency":    product.Currency,
	})
}

// SetStockQuantity writes the aggregated stock if the version is unchanged
func (r *ProductRepository) SetStockQuantity(ctx context.Context, product *models.Product, quantity int) error {
	if err := r.compareAndSwap(ctx, product, map[string]interface{}{"stock_quantity": quantity}); err != nil {
		return err
	}
	product.StockQuantity = quantity
	return nil
}

func (r *ProductRepository) compareAndSwap(ctx context.Context, product *models.Product, updates map[string]interface{}) error {
	updates["version"] = product.Version + 1
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND version = ?", product.ID, product.Version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConcurrentModification
	}
	product.Version++
	return nil
}

// CreateReference links an existing product to a marketplace listing. A
// concurrent link of the same listing fails with ErrConcurrentModification.
func (r *ProductRepository) CreateReference(ctx context.Context, ref *models.ProductMarketplaceReference) error {
	err := r.db.WithContext(ctx).Create(ref).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrConcurrentModification
	}
	return err
}

// SaveReference writes a reference's ids, baseline and sync time if its
// version is unchanged, then bumps the version
func (r *ProductRepository) SaveReference(ctx context.Context, ref *models.ProductMarketplaceReference) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.ProductMarketplaceReference{}).
		Where("id = ? AND version = ?", ref.ID, ref.Version).
		Updates(map[string]interface{}{
			"marketplace_product_id": ref.MarketplaceProductID,
			"external_variant_id":    ref.ExternalVariantID,
			"inventory_item_id":      ref.InventoryItemID,
			"location_id":            ref.LocationID,
			"baseline":               ref.Baseline,
			"last_synced_at":         ref.LastSyncedAt,
			"version":                ref.Version + 1,
			"updated_at":             now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConcurrentModification
	}
	ref.Version++
	ref.UpdatedAt = now
	return nil
}

// GetReference retrieves the reference of a product on a connection
func (r *ProductRepository) GetReference(ctx context.Context, productID, connectionID uuid.UUID) (*models.ProductMarketplaceReference, error) {
	var ref models.ProductMarketplaceReference
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND connection_id = ?", productID, connectionID).
		First(&ref).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ref, nil
}

// DeleteReferencesByConnection unlinks every product from a connection
func (r *ProductRepository) DeleteReferencesByConnection(ctx context.Context, connectionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.ProductMarketplaceReference{}, "connection_id = ?", connectionID).Error
}
