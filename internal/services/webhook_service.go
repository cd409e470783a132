package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// WebhookReceipt is returned to the marketplace
type WebhookReceipt struct {
	Received  bool      `json:"received"`
	Duplicate bool      `json:"duplicate,omitempty"`
	EventID   string    `json:"eventId,omitempty"`
	WebhookID uuid.UUID `json:"-"`
}

// WebhookService handles marketplace webhook processing
type WebhookService struct {
	webhookRepo *repository.WebhookRepository
	connections *repository.ConnectionRepository
	connService *ConnectionService
	syncService *SyncService
	ingestion   *IngestionService
	ordering    *EventOrdering
	seen        SeenSet
	dedupTTL    time.Duration
	logger      *logrus.Entry

	// dispatch runs event processing off the request path
	dispatch func(func())
}

// NewWebhookService creates a new webhook service. seen may be nil, leaving
// the unique idempotency key as the only de-duplication. ordering may be nil,
// in which case embedded records are applied in arrival order.
func NewWebhookService(
	webhookRepo *repository.WebhookRepository,
	connections *repository.ConnectionRepository,
	connService *ConnectionService,
	syncService *SyncService,
	ingestion *IngestionService,
	ordering *EventOrdering,
	seen SeenSet,
	dedupTTL time.Duration,
	logger *logrus.Entry,
) *WebhookService {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	return &WebhookService{
		webhookRepo: webhookRepo,
		connections: connections,
		connService: connService,
		syncService: syncService,
		ingestion:   ingestion,
		ordering:    ordering,
		seen:        seen,
		dedupTTL:    dedupTTL,
		logger:      logger.WithField("component", "webhooks"),
		dispatch:    func(fn func()) { go fn() },
	}
}

// Receive verifies a delivery, drops duplicates, records it and hands it to
// asynchronous processing.
func (s *WebhookService) Receive(ctx context.Context, marketplaceType models.MarketplaceType, connectionID uuid.UUID, req *clients.WebhookRequest) (*WebhookReceipt, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.MarketplaceType != marketplaceType {
		return nil, apperrors.ErrNotFound
	}

	adapter, _, err := s.connService.Adapter(ctx, conn)
	if err != nil {
		return nil, err
	}
	event, err := adapter.HandleWebhook(ctx, req)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenantId":     conn.TenantID,
		"connectionId": conn.ID,
		"marketplace":  conn.MarketplaceType,
		"eventId":      event.EventID,
		"eventType":    event.EventType,
	})

	key := models.WebhookIdempotencyKey(marketplaceType, event.EventID)
	receipt := &WebhookReceipt{Received: true, EventID: event.EventID}

	if s.seen != nil {
		isNew, err := s.seen.MarkIfNew(ctx, key, s.dedupTTL)
		if err != nil {
			// Fall through to the durable key
			log.WithError(err).Warn("Seen-set unavailable")
		} else if !isNew {
			log.Debug("Duplicate webhook dropped")
			receipt.Duplicate = true
			return receipt, nil
		}
	}

	record := &models.MarketplaceWebhookEvent{
		ConnectionID:    conn.ID,
		TenantID:        conn.TenantID,
		MarketplaceType: marketplaceType,
		EventID:         event.EventID,
		EventType:       event.EventType,
		ResourceType:    event.ResourceType,
		ResourceID:      event.ResourceID,
		Payload:         models.JSONB(event.Payload),
		IdempotencyKey:  key,
	}
	if err := s.webhookRepo.Create(ctx, record); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEvent) {
			log.Debug("Duplicate webhook dropped by idempotency key")
			receipt.Duplicate = true
			return receipt, nil
		}
		if s.seen != nil {
			// Let the marketplace's redelivery through
			if ferr := s.seen.Forget(ctx, key); ferr != nil {
				log.WithError(ferr).Warn("Failed to release seen-set key")
			}
		}
		return nil, err
	}
	receipt.WebhookID = record.ID

	processCtx := context.WithoutCancel(ctx)
	s.dispatch(func() {
		s.process(processCtx, conn, record, event)
	})
	return receipt, nil
}

// process ingests an embedded record directly, otherwise syncs the connection.
// An embedded record older than one already applied is skipped.
func (s *WebhookService) process(ctx context.Context, conn *models.MarketplaceConnection, record *models.MarketplaceWebhookEvent, event *clients.WebhookEvent) {
	var err error
	embedded := event.Product != nil || event.Order != nil

	stale := false
	if embedded && s.ordering != nil {
		stale, err = s.ordering.IsStale(ctx, conn.ID, event.ResourceType, event.ResourceID, event.Timestamp)
	}

	switch {
	case err != nil || stale:
		// nothing to apply
	case event.Product != nil:
		var cfg *models.SyncConfig
		cfg, err = s.syncService.configFor(ctx, conn)
		if err == nil {
			err = s.ingestion.IngestProducts(ctx, conn, cfg, []clients.ExternalProduct{*event.Product}).Err
		}
	case event.Order != nil:
		err = s.ingestion.IngestOrders(ctx, conn, []clients.ExternalOrder{*event.Order}).Err
	default:
		_, err = s.syncService.SyncConnection(ctx, conn.TenantID, conn.ID, models.TriggerWebhook)
		if errors.Is(err, apperrors.ErrSyncInProgress) {
			// The next pass picks the change up from the cursor
			err = nil
		}
	}

	if err == nil && embedded && !stale && s.ordering != nil {
		err = s.ordering.Record(ctx, conn.ID, event.ResourceType, event.ResourceID, event.EventID, event.Timestamp)
	}

	log := s.logger.WithFields(logrus.Fields{
		"connectionId": conn.ID,
		"webhookId":    record.ID,
		"eventType":    record.EventType,
	})
	if stale {
		log.WithField("resourceId", event.ResourceID).Info("Stale webhook skipped")
	}
	if err != nil {
		log.WithError(err).Warn("Webhook processing failed")
	}
	if markErr := s.webhookRepo.MarkProcessed(ctx, record.ID, err); markErr != nil {
		log.WithError(markErr).Error("Failed to mark webhook processed")
	}
}

// ListEvents returns a connection's recent webhook deliveries
func (s *WebhookService) ListEvents(ctx context.Context, tenantID string, connectionID uuid.UUID, opts repository.ListOptions) ([]models.MarketplaceWebhookEvent, error) {
	if _, err := s.connections.GetForTenant(ctx, tenantID, connectionID); err != nil {
		return nil, err
	}
	return s.webhookRepo.ListByConnection(ctx, connectionID, opts)
}
