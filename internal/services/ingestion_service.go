package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/mappers"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// ItemError is a record that could not be ingested
type ItemError struct {
	ExternalID string `json:"externalId"`
	SKU        string `json:"sku,omitempty"`
	Error      string `json:"error"`
}

// IngestionResult counts what one batch did. Err is set when the batch
// stopped on a persistence failure; the sync cursor must not advance then.
type IngestionResult struct {
	Created     int         `json:"created"`
	Updated     int         `json:"updated"`
	Unchanged   int         `json:"unchanged"`
	Skipped     int         `json:"skipped"`
	Conflicts   int         `json:"conflicts"`
	PendingPush int         `json:"pendingPush"`
	Errors      int         `json:"errors"`
	ItemErrors  []ItemError `json:"itemErrors,omitempty"`
	Err         error       `json:"-"`
}

// Failed reports a batch-level failure
func (r *IngestionResult) Failed() bool {
	return r.Err != nil
}

// Merge adds another batch's counters
func (r *IngestionResult) Merge(other *IngestionResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Skipped += other.Skipped
	r.Conflicts += other.Conflicts
	r.PendingPush += other.PendingPush
	r.Errors += other.Errors
	r.ItemErrors = append(r.ItemErrors, other.ItemErrors...)
	if r.Err == nil {
		r.Err = other.Err
	}
}

func (r *IngestionResult) itemFailed(externalID, sku string, err error) {
	r.Errors++
	r.ItemErrors = append(r.ItemErrors, ItemError{ExternalID: externalID, SKU: sku, Error: err.Error()})
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeSkipped
)

func (r *IngestionResult) count(o outcome) {
	switch o {
	case outcomeCreated:
		r.Created++
	case outcomeUpdated:
		r.Updated++
	case outcomeSkipped:
		r.Skipped++
	default:
		r.Unchanged++
	}
}

// isItemLevel reports errors that fail one record but not the batch
func isItemLevel(err error) bool {
	return apperrors.KindOf(err) == apperrors.KindValidation ||
		errors.Is(err, apperrors.ErrConcurrentModification)
}

// IngestionService upserts marketplace records into the canonical catalog
// under the connection's sync policy.
type IngestionService struct {
	products   *repository.ProductRepository
	orders     *repository.OrderRepository
	conflicts  *repository.ConflictRepository
	reconciler *StockReconciler
	notifier   Notifier
	logger     *logrus.Entry
	now        func() time.Time
}

// NewIngestionService creates an ingestion service
func NewIngestionService(
	products *repository.ProductRepository,
	orders *repository.OrderRepository,
	conflicts *repository.ConflictRepository,
	reconciler *StockReconciler,
	notifier Notifier,
	logger *logrus.Entry,
) *IngestionService {
	return &IngestionService{
		products:   products,
		orders:     orders,
		conflicts:  conflicts,
		reconciler: reconciler,
		notifier:   notifier,
		logger:     logger.WithField("component", "ingestion"),
		now:        time.Now,
	}
}

// IngestProducts upserts one page of marketplace products
func (s *IngestionService) IngestProducts(ctx context.Context, conn *models.MarketplaceConnection, cfg *models.SyncConfig, products []clients.ExternalProduct) *IngestionResult {
	result := &IngestionResult{}

	mapper, err := mappers.ForMarketplace(conn.MarketplaceType)
	if err != nil {
		result.Err = err
		return result
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenantId":     conn.TenantID,
		"connectionId": conn.ID,
		"marketplace":  conn.MarketplaceType,
	})

	for i := range products {
		canonical, err := mapper.MapProduct(&products[i])
		if err != nil {
			result.itemFailed(products[i].ID, products[i].SKU, err)
			continue
		}

		var item productOutcome
		for attempt := 0; attempt <= maxCASRetries; attempt++ {
			item, err = s.upsertProduct(ctx, conn, cfg, mapper, canonical)
			if !errors.Is(err, apperrors.ErrConcurrentModification) {
				break
			}
		}
		if err != nil {
			if isItemLevel(err) {
				result.itemFailed(canonical.ExternalID, canonical.SKU, err)
				continue
			}
			log.WithError(err).WithField("sku", canonical.SKU).Error("Product ingestion aborted")
			result.Err = err
			return result
		}

		result.count(item.outcome)
		result.Conflicts += item.conflicts
		result.PendingPush += item.pendingPush
	}

	log.WithFields(logrus.Fields{
		"created":   result.Created,
		"updated":   result.Updated,
		"skipped":   result.Skipped,
		"conflicts": result.Conflicts,
		"errors":    result.Errors,
	}).Debug("Ingested product batch")
	return result
}

type productOutcome struct {
	outcome     outcome
	conflicts   int
	pendingPush int
}

func (s *IngestionService) upsertProduct(ctx context.Context, conn *models.MarketplaceConnection, cfg *models.SyncConfig, mapper mappers.Mapper, canonical *mappers.CanonicalProduct) (productOutcome, error) {
	product, err := s.products.GetByReference(ctx, conn.ID, canonical.ExternalID)
	if errors.Is(err, apperrors.ErrNotFound) {
		product, err = s.products.GetBySKU(ctx, conn.TenantID, canonical.SKU)
	}
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		if !cfg.CreateProducts {
			return productOutcome{outcome: outcomeSkipped}, nil
		}
		return s.createProduct(ctx, conn, cfg, canonical)
	case err != nil:
		return productOutcome{}, err
	}
	return s.updateProduct(ctx, conn, cfg, mapper, product, canonical)
}

func (s *IngestionService) createProduct(ctx context.Context, conn *models.MarketplaceConnection, cfg *models.SyncConfig, canonical *mappers.CanonicalProduct) (productOutcome, error) {
	product := &models.Product{
		TenantID:    conn.TenantID,
		SKU:         canonical.SKU,
		Name:        canonical.Name,
		Description: canonical.Description,
		Brand:       canonical.Brand,
		Barcode:     canonical.Barcode,
		Status:      canonical.Status,
		Price:       canonical.Price,
		Currency:    canonical.Currency,
	}
	if canonical.RRP != nil {
		product.RRP = *canonical.RRP
	}

	warehouseID, err := s.reconciler.ResolveWarehouse(ctx, conn.TenantID, cfg, canonical.LocationID)
	if err != nil {
		return productOutcome{}, err
	}

	ref := newReference(conn, canonical)
	for field, value := range baselineValues(canonical, warehouseID) {
		ref.SetBaseline(field, value)
	}
	ref.LastSyncedAt = timePtr(s.now())

	if err := s.products.CreateWithReference(ctx, product, ref); err != nil {
		return productOutcome{}, err
	}

	if _, err := s.reconcileStock(ctx, conn, product.ID, warehouseID, canonical.StockQuantity); err != nil {
		return productOutcome{}, err
	}
	return productOutcome{outcome: outcomeCreated}, nil
}

func (s *IngestionService) updateProduct(ctx context.Context, conn *models.MarketplaceConnection, cfg *models.SyncConfig, mapper mappers.Mapper, product *models.Product, canonical *mappers.CanonicalProduct) (productOutcome, error) {
	ref := product.ReferenceFor(conn.ID)
	linked := ref != nil
	if !linked {
		// Matched by SKU: link without a baseline
		ref = newReference(conn, canonical)
		ref.TenantID = product.TenantID
		ref.ProductID = product.ID
	} else {
		ref.MarketplaceProductID = canonical.ExternalID
		if canonical.ExternalVariantID != "" {
			ref.ExternalVariantID = canonical.ExternalVariantID
		}
		if canonical.InventoryItemID != "" {
			ref.InventoryItemID = canonical.InventoryItemID
		}
		if canonical.LocationID != "" {
			ref.LocationID = canonical.LocationID
		}
	}

	var result productOutcome

	warehouseID, err := s.reconciler.ResolveWarehouse(ctx, conn.TenantID, cfg, canonical.LocationID)
	if err != nil {
		return result, err
	}
	onHand, err := s.reconciler.OnHand(ctx, product.ID, warehouseID)
	if err != nil {
		return result, err
	}

	// The listing's stock is one warehouse; the product total spans all of them
	local := *product
	local.StockQuantity = onHand
	diffs := mapper.FindDifferences(&local, canonical)
	for i := range diffs {
		if diffs[i].Field == mappers.FieldStockQuantity {
			diffs[i].BaselineKey = mappers.StockBaselineField(warehouseID)
		}
	}
	decisions := decideFields(cfg, diffs, ref)

	var conflicts []FieldDecision
	fieldsChanged, applyStock := false, false
	for _, d := range decisions {
		switch d.Action {
		case ActionApply:
			if d.Field == mappers.FieldStockQuantity {
				applyStock = true
				continue
			}
			if err := mappers.ApplyValue(product, d.Field, d.Incoming); err != nil {
				return result, apperrors.Wrap(apperrors.KindValidation, "apply_field", err)
			}
			fieldsChanged = true
		case ActionConflict:
			conflicts = append(conflicts, d)
		case ActionPendingPush:
			result.pendingPush++
		}
	}

	if fieldsChanged {
		if err := s.products.UpdateFields(ctx, product); err != nil {
			return result, err
		}
	}

	stockChanged := false
	if applyStock {
		stockChanged, err = s.reconcileStock(ctx, conn, product.ID, warehouseID, canonical.StockQuantity)
		if err != nil {
			return result, err
		}
	}

	recorded, err := s.recordConflicts(ctx, conn, cfg, product, conflicts)
	if err != nil {
		return result, err
	}
	result.conflicts = recorded

	refreshBaseline(ref, baselineValues(canonical, warehouseID), decisions)
	ref.LastSyncedAt = timePtr(s.now())
	if linked {
		err = s.products.SaveReference(ctx, ref)
	} else {
		err = s.products.CreateReference(ctx, ref)
	}
	if err != nil {
		return result, err
	}

	if fieldsChanged || stockChanged {
		result.outcome = outcomeUpdated
	}
	return result, nil
}

func (s *IngestionService) reconcileStock(ctx context.Context, conn *models.MarketplaceConnection, productID, warehouseID uuid.UUID, quantity int) (bool, error) {
	connectionID := conn.ID
	reconciled, err := s.reconciler.Reconcile(ctx, ReconcileRequest{
		TenantID:     conn.TenantID,
		ProductID:    productID,
		WarehouseID:  warehouseID,
		Quantity:     quantity,
		Source:       models.SourceMarketplace,
		ConnectionID: &connectionID,
	})
	if err != nil {
		return false, err
	}
	return reconciled.Changed, nil
}

// baselineValues keys the incoming fields by baseline field, stock under
// the warehouse it was reconciled into
func baselineValues(canonical *mappers.CanonicalProduct, warehouseID uuid.UUID) map[string]string {
	values := mappers.IncomingValues(canonical)
	if stock, ok := values[mappers.FieldStockQuantity]; ok {
		delete(values, mappers.FieldStockQuantity)
		values[mappers.StockBaselineField(warehouseID)] = stock
	}
	return values
}

// recordConflicts logs each disagreement once while it stays pending
func (s *IngestionService) recordConflicts(ctx context.Context, conn *models.MarketplaceConnection, cfg *models.SyncConfig, product *models.Product, decisions []FieldDecision) (int, error) {
	if !cfg.LogConflicts || len(decisions) == 0 {
		return 0, nil
	}

	recorded := 0
	for _, d := range decisions {
		exists, err := s.conflicts.PendingExists(ctx, product.ID, conn.ID, d.Field, d.Incoming)
		if err != nil {
			return recorded, err
		}
		if exists {
			continue
		}

		conflict := &models.Conflict{
			TenantID:         conn.TenantID,
			ProductID:        product.ID,
			ConnectionID:     conn.ID,
			MarketplaceType:  conn.MarketplaceType,
			Field:            d.Field,
			FieldGroup:       d.Group,
			LocalValue:       d.Local,
			MarketplaceValue: d.Incoming,
			DetectedAt:       s.now(),
		}
		if err := s.conflicts.Create(ctx, conflict); err != nil {
			return recorded, err
		}
		recorded++

		detected := apperrors.New(apperrors.KindConflictDetected, "ingest_product", "%s changed on both sides", d.Field)
		s.logger.WithError(detected).WithFields(logrus.Fields{
			"conflictId":   conflict.ID,
			"connectionId": conn.ID,
			"sku":          product.SKU,
		}).Info("Conflict recorded")

		if s.notifier != nil {
			err := s.notifier.Notify(ctx, conn.TenantID, EventConflictDetected, map[string]interface{}{
				"conflictId":       conflict.ID.String(),
				"productId":        product.ID.String(),
				"sku":              product.SKU,
				"marketplace":      string(conn.MarketplaceType),
				"field":            d.Field,
				"localValue":       d.Local,
				"marketplaceValue": d.Incoming,
			})
			if err != nil {
				s.logger.WithError(err).WithField("conflictId", conflict.ID).Warn("Failed to send conflict notification")
			}
		}
	}
	return recorded, nil
}

// IngestOrders upserts one page of marketplace orders. Existing orders only
// have their status fields updated.
func (s *IngestionService) IngestOrders(ctx context.Context, conn *models.MarketplaceConnection, orders []clients.ExternalOrder) *IngestionResult {
	result := &IngestionResult{}

	mapper, err := mappers.ForMarketplace(conn.MarketplaceType)
	if err != nil {
		result.Err = err
		return result
	}

	for i := range orders {
		canonical, err := mapper.MapOrder(&orders[i])
		if err != nil {
			result.itemFailed(orders[i].ID, "", err)
			continue
		}

		o, err := s.upsertOrder(ctx, conn, canonical)
		if errors.Is(err, apperrors.ErrConcurrentModification) {
			// Created concurrently; the second pass takes the update path
			o, err = s.upsertOrder(ctx, conn, canonical)
		}
		if err != nil {
			if isItemLevel(err) {
				result.itemFailed(canonical.MarketplaceOrderID, "", err)
				continue
			}
			s.logger.WithError(err).WithFields(logrus.Fields{
				"connectionId": conn.ID,
				"orderId":      canonical.MarketplaceOrderID,
			}).Error("Order ingestion aborted")
			result.Err = err
			return result
		}
		result.count(o)
	}
	return result
}

func (s *IngestionService) upsertOrder(ctx context.Context, conn *models.MarketplaceConnection, canonical *mappers.CanonicalOrder) (outcome, error) {
	existing, err := s.orders.GetByMarketplaceOrderID(ctx, conn.TenantID, conn.MarketplaceType, canonical.MarketplaceOrderID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		order, err := s.buildOrder(ctx, conn, canonical)
		if err != nil {
			return outcomeUnchanged, err
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeCreated, nil
	case err != nil:
		return outcomeUnchanged, err
	}

	if existing.Status == canonical.Status &&
		existing.PaymentStatus == canonical.PaymentStatus &&
		existing.FulfillmentStatus == canonical.FulfillmentStatus {
		return outcomeUnchanged, nil
	}

	existing.Status = canonical.Status
	existing.PaymentStatus = canonical.PaymentStatus
	existing.FulfillmentStatus = canonical.FulfillmentStatus
	if !canonical.UpdatedAt.IsZero() {
		existing.MarketplaceUpdatedAt = timePtr(canonical.UpdatedAt)
	}
	if err := s.orders.UpdateStatuses(ctx, existing); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeUpdated, nil
}

func (s *IngestionService) buildOrder(ctx context.Context, conn *models.MarketplaceConnection, canonical *mappers.CanonicalOrder) (*models.Order, error) {
	order := &models.Order{
		TenantID:           conn.TenantID,
		MarketplaceType:    conn.MarketplaceType,
		MarketplaceOrderID: canonical.MarketplaceOrderID,
		ConnectionID:       conn.ID,
		OrderNumber:        canonical.OrderNumber,
		Status:             canonical.Status,
		PaymentStatus:      canonical.PaymentStatus,
		FulfillmentStatus:  canonical.FulfillmentStatus,
		Currency:           canonical.Currency,
		TotalAmount:        canonical.TotalAmount,
		CustomerName:       canonical.CustomerName,
		CustomerEmail:      canonical.CustomerEmail,
		ShippingAddress:    canonical.ShippingAddress,
	}
	if !canonical.PlacedAt.IsZero() {
		order.PlacedAt = timePtr(canonical.PlacedAt)
	}
	if !canonical.UpdatedAt.IsZero() {
		order.MarketplaceUpdatedAt = timePtr(canonical.UpdatedAt)
	}

	for _, line := range canonical.Lines {
		orderLine := models.OrderLine{
			ExternalLineID: line.ExternalLineID,
			SKU:            line.SKU,
			Title:          line.Title,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
		}
		if line.SKU != "" {
			product, err := s.products.GetBySKU(ctx, conn.TenantID, line.SKU)
			switch {
			case err == nil:
				orderLine.ProductID = &product.ID
			case !errors.Is(err, apperrors.ErrNotFound):
				return nil, err
			}
		}
		order.Lines = append(order.Lines, orderLine)
	}
	return order, nil
}

func newReference(conn *models.MarketplaceConnection, canonical *mappers.CanonicalProduct) *models.ProductMarketplaceReference {
	return &models.ProductMarketplaceReference{
		TenantID:             conn.TenantID,
		ConnectionID:         conn.ID,
		MarketplaceType:      conn.MarketplaceType,
		MarketplaceProductID: canonical.ExternalID,
		ExternalVariantID:    canonical.ExternalVariantID,
		InventoryItemID:      canonical.InventoryItemID,
		LocationID:           canonical.LocationID,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
