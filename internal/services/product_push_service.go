package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/mappers"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
	"marketplace-sync-service/internal/secrets"
)

// PushRequest carries the canonical values to send to a marketplace
type PushRequest struct {
	Price  *decimal.Decimal `json:"price,omitempty"`
	RRP    *decimal.Decimal `json:"rrp,omitempty"`
	Stock  *int             `json:"stock,omitempty"`
	Status *string          `json:"status,omitempty"`
}

// IsEmpty reports whether no field is set
func (r *PushRequest) IsEmpty() bool {
	return r == nil || (r.Price == nil && r.RRP == nil && r.Stock == nil && r.Status == nil)
}

// PushResult reports what was sent
type PushResult struct {
	ProductID    uuid.UUID              `json:"productId"`
	ConnectionID uuid.UUID              `json:"connectionId"`
	Marketplace  models.MarketplaceType `json:"marketplace"`
	Fields       []string               `json:"fields"`
	PushedAt     time.Time              `json:"pushedAt"`
}

// ProductPushService sends canonical changes to a linked marketplace listing
type ProductPushService struct {
	products       *repository.ProductRepository
	connections    *repository.ConnectionRepository
	connService    *ConnectionService
	reconciler     *StockReconciler
	credits        CreditLedger
	creditsPerPush int
	logger         *logrus.Entry
	now            func() time.Time
}

// NewProductPushService creates a push service
func NewProductPushService(
	products *repository.ProductRepository,
	connections *repository.ConnectionRepository,
	connService *ConnectionService,
	reconciler *StockReconciler,
	credits CreditLedger,
	creditsPerPush int,
	logger *logrus.Entry,
) *ProductPushService {
	return &ProductPushService{
		products:       products,
		connections:    connections,
		connService:    connService,
		reconciler:     reconciler,
		credits:        credits,
		creditsPerPush: creditsPerPush,
		logger:         logger.WithField("component", "product_push"),
		now:            time.Now,
	}
}

// Push forwards price, rrp and status through UpdateProduct and stock
// through UpdateInventory, then records the pushed values as the baseline.
func (s *ProductPushService) Push(ctx context.Context, tenantID string, productID, connectionID uuid.UUID, req *PushRequest) (*PushResult, error) {
	const op = "push_product"

	if req.IsEmpty() {
		return nil, apperrors.ErrNoUpdateFields
	}
	if err := validatePush(req); err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	conn, err := s.connections.GetForTenant(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}
	ref := product.ReferenceFor(conn.ID)
	if ref == nil {
		return nil, apperrors.New(apperrors.KindValidation, op, "product %s is not linked to connection %s", product.SKU, conn.ID)
	}

	if s.credits != nil && s.creditsPerPush > 0 {
		if err := s.credits.Deduct(ctx, tenantID, s.creditsPerPush, "marketplace_push"); err != nil {
			return nil, err
		}
	}

	adapter, creds, err := s.connService.Adapter(ctx, conn)
	if err != nil {
		return nil, err
	}

	result := &PushResult{ProductID: product.ID, ConnectionID: conn.ID, Marketplace: conn.MarketplaceType}

	update := &clients.ProductUpdate{
		VariantID: ref.ExternalVariantID,
		SKU:       product.SKU,
		Price:     req.Price,
		RRP:       req.RRP,
	}
	if req.Status != nil {
		status := strings.ToUpper(*req.Status)
		update.Status = &status
	}
	pushed := make(map[string]string)
	if !update.IsEmpty() {
		if _, err := adapter.UpdateProduct(ctx, ref.MarketplaceProductID, update); err != nil {
			s.evictOnAuthFailure(conn, creds, err)
			return nil, err
		}
		if update.Price != nil {
			pushed[mappers.FieldPrice] = update.Price.StringFixed(2)
			result.Fields = append(result.Fields, mappers.FieldPrice)
		}
		if update.RRP != nil {
			pushed[mappers.FieldRRP] = update.RRP.StringFixed(2)
			result.Fields = append(result.Fields, mappers.FieldRRP)
		}
		if update.Status != nil {
			pushed[mappers.FieldStatus] = *update.Status
			result.Fields = append(result.Fields, mappers.FieldStatus)
		}
	}

	if req.Stock != nil {
		warehouseID, err := s.reconciler.ResolveWarehouse(ctx, tenantID, conn.SyncConfig, ref.LocationID)
		if err != nil {
			return nil, err
		}
		err = adapter.UpdateInventory(ctx, []clients.InventoryUpdate{{
			SKU:             product.SKU,
			ProductID:       ref.MarketplaceProductID,
			VariantID:       ref.ExternalVariantID,
			InventoryItemID: ref.InventoryItemID,
			LocationID:      ref.LocationID,
			Quantity:        *req.Stock,
		}})
		if err != nil {
			s.evictOnAuthFailure(conn, creds, err)
			return nil, err
		}
		pushed[mappers.StockBaselineField(warehouseID)] = strconv.Itoa(*req.Stock)
		result.Fields = append(result.Fields, mappers.FieldStockQuantity)
	}

	result.PushedAt = s.now()
	if err := s.saveBaseline(ctx, ref, pushed, result.PushedAt); err != nil {
		// values are already on the marketplace
		s.logger.WithError(err).WithField("productId", product.ID).Warn("Failed to record pushed baseline")
	}

	s.logger.WithFields(logrus.Fields{
		"tenantId":     tenantID,
		"connectionId": conn.ID,
		"marketplace":  conn.MarketplaceType,
		"sku":          product.SKU,
		"fields":       result.Fields,
	}).Info("Pushed product to marketplace")
	return result, nil
}

// saveBaseline records the pushed values, reloading the reference when an
// ingestion pass saved it first
func (s *ProductPushService) saveBaseline(ctx context.Context, ref *models.ProductMarketplaceReference, pushed map[string]string, at time.Time) error {
	for attempt := 0; ; attempt++ {
		for field, value := range pushed {
			ref.SetBaseline(field, value)
		}
		ref.LastSyncedAt = &at
		err := s.products.SaveReference(ctx, ref)
		if !errors.Is(err, apperrors.ErrConcurrentModification) || attempt == maxCASRetries {
			return err
		}
		if ref, err = s.products.GetReference(ctx, ref.ProductID, ref.ConnectionID); err != nil {
			return err
		}
	}
}

func (s *ProductPushService) evictOnAuthFailure(conn *models.MarketplaceConnection, creds secrets.Credentials, err error) {
	if isAuthFailure(err) {
		s.connService.EvictAdapter(conn.MarketplaceType, creds)
	}
}

func validatePush(req *PushRequest) error {
	const op = "push_product"
	if req.Price != nil && req.Price.IsNegative() {
		return apperrors.New(apperrors.KindValidation, op, "price cannot be negative")
	}
	if req.RRP != nil && req.RRP.IsNegative() {
		return apperrors.New(apperrors.KindValidation, op, "rrp cannot be negative")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return apperrors.New(apperrors.KindValidation, op, "stock cannot be negative")
	}
	if req.Status != nil {
		switch models.ProductStatus(strings.ToUpper(*req.Status)) {
		case models.ProductActive, models.ProductDraft, models.ProductArchived:
		default:
			return apperrors.New(apperrors.KindValidation, op, "invalid status %q", *req.Status)
		}
	}
	return nil
}
