package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// maxRecordedItemErrors caps the item errors kept on a sync run
const maxRecordedItemErrors = 50

// SyncOptions tunes the orchestrator
type SyncOptions struct {
	BatchSize      int
	MaxParallel    int
	Timeout        time.Duration
	CreditsPerSync int
}

// Connection outcomes within a cycle
const (
	OutcomeSucceeded = "SUCCEEDED"
	OutcomeFailed    = "FAILED"
	OutcomeSkipped   = "SKIPPED"
)

// ConnectionResult is one connection's outcome within a cycle
type ConnectionResult struct {
	ConnectionID uuid.UUID              `json:"connectionId"`
	TenantID     string                 `json:"tenantId"`
	Marketplace  models.MarketplaceType `json:"marketplace"`
	Outcome      string                 `json:"outcome"`
	RunID        *uuid.UUID             `json:"runId,omitempty"`
	RunStatus    models.SyncRunStatus   `json:"runStatus,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// CycleSummary reports one orchestration cycle
type CycleSummary struct {
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Skipped     int                `json:"skipped"`
	Connections []ConnectionResult `json:"connections"`
}

// IngestRequest pushes native marketplace records for one connection. With
// no payloads the connection is synced from the marketplace instead.
type IngestRequest struct {
	ConnectionID uuid.UUID       `json:"connectionId"`
	Products     json.RawMessage `json:"products,omitempty"`
	Orders       json.RawMessage `json:"orders,omitempty"`
}

// IngestSummary is returned by the ingest trigger
type IngestSummary struct {
	RunID       uuid.UUID            `json:"runId"`
	Status      models.SyncRunStatus `json:"status"`
	Created     int                  `json:"created"`
	Updated     int                  `json:"updated"`
	Unchanged   int                  `json:"unchanged"`
	Skipped     int                  `json:"skipped"`
	Conflicts   int                  `json:"conflicts"`
	PendingPush int                  `json:"pendingPush"`
	Errors      int                  `json:"errors"`
	ItemErrors  []ItemError          `json:"itemErrors,omitempty"`
}

// passResult holds the product and order counters of one pass
type passResult struct {
	products *IngestionResult
	orders   *IngestionResult
}

func newPassResult() *passResult {
	return &passResult{products: &IngestionResult{}, orders: &IngestionResult{}}
}

// SyncService orchestrates sync passes over marketplace connections
type SyncService struct {
	connections *repository.ConnectionRepository
	syncRepo    *repository.SyncRepository
	connService *ConnectionService
	ingestion   *IngestionService
	locker      *ConnectionLocker
	notifier    Notifier
	credits     CreditLedger
	opts        SyncOptions
	logger      *logrus.Entry
	now         func() time.Time
}

// NewSyncService creates a new sync service
func NewSyncService(
	connections *repository.ConnectionRepository,
	syncRepo *repository.SyncRepository,
	connService *ConnectionService,
	ingestion *IngestionService,
	locker *ConnectionLocker,
	notifier Notifier,
	credits CreditLedger,
	opts SyncOptions,
	logger *logrus.Entry,
) *SyncService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	return &SyncService{
		connections: connections,
		syncRepo:    syncRepo,
		connService: connService,
		ingestion:   ingestion,
		locker:      locker,
		notifier:    notifier,
		credits:     credits,
		opts:        opts,
		logger:      logger.WithField("component", "sync"),
		now:         time.Now,
	}
}

// RunCycle syncs every syncable connection of every tenant
func (s *SyncService) RunCycle(ctx context.Context) (*CycleSummary, error) {
	return s.RunCycleForTenant(ctx, "")
}

// RunCycleForTenant syncs the tenant's syncable connections with bounded
// parallelism. One connection's failure never stops the others.
func (s *SyncService) RunCycleForTenant(ctx context.Context, tenantID string) (*CycleSummary, error) {
	connections, err := s.connections.ListSyncable(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results := make([]ConnectionResult, len(connections))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxParallel)
	for i := range connections {
		conn := &connections[i]
		g.Go(func() error {
			results[i] = s.syncForCycle(ctx, conn)
			return nil
		})
	}
	_ = g.Wait()

	summary := &CycleSummary{Total: len(results), Connections: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSucceeded:
			summary.Succeeded++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"tenantId":  tenantID,
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("Sync cycle finished")
	return summary, nil
}

func (s *SyncService) syncForCycle(ctx context.Context, conn *models.MarketplaceConnection) ConnectionResult {
	result := ConnectionResult{
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		Marketplace:  conn.MarketplaceType,
	}

	run, err := s.SyncConnection(ctx, conn.TenantID, conn.ID, models.TriggerScheduled)
	if run != nil {
		result.RunID = &run.ID
		result.RunStatus = run.Status
	}
	switch {
	case errors.Is(err, apperrors.ErrSyncInProgress):
		result.Outcome = OutcomeSkipped
	case err != nil:
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
	default:
		result.Outcome = OutcomeSucceeded
	}
	return result
}

// SyncConnection runs one pass over a connection: products, then orders,
// from the last cursor. At most one pass per connection runs at a time;
// a concurrent call fails with ErrSyncInProgress. The returned run is set
// whenever a pass was started, even if it failed.
func (s *SyncService) SyncConnection(ctx context.Context, tenantID string, connectionID uuid.UUID, trigger models.TriggerType) (*models.SyncRun, error) {
	release, err := s.locker.TryLock(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conn, err := s.connections.GetForTenant(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive() {
		return nil, apperrors.New(apperrors.KindValidation, "sync_connection", "connection %s is disabled or disconnected", conn.ID)
	}

	cfg, err := s.configFor(ctx, conn)
	if err != nil {
		return nil, err
	}

	start := s.now()
	run := &models.SyncRun{
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		TriggeredBy:  trigger,
		Status:       models.SyncRunRunning,
		CursorFrom:   conn.LastSyncedAt,
		StartedAt:    start,
	}
	if err := s.syncRepo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenantId":     conn.TenantID,
		"connectionId": conn.ID,
		"marketplace":  conn.MarketplaceType,
		"runId":        run.ID,
	})
	log.Info("Sync pass started")

	passCtx, cancel := s.withTimeout(ctx)
	result, passErr := s.pass(passCtx, conn, cfg)
	cancel()

	// The pass context may be done; bookkeeping must still be written
	finishCtx := context.WithoutCancel(ctx)
	if passErr != nil {
		s.recordFailure(finishCtx, conn, passErr, log)
	} else if err := s.connections.MarkSyncSucceeded(finishCtx, conn.ID, start); err != nil {
		passErr = err
	}

	s.finishRun(finishCtx, run, result, start, passErr, log)
	return run, passErr
}

// Ingest charges the tenant for a sync and either ingests the pushed native
// records or, with no payload, syncs the connection.
func (s *SyncService) Ingest(ctx context.Context, tenantID string, req *IngestRequest) (*IngestSummary, error) {
	if req.ConnectionID == uuid.Nil {
		return nil, apperrors.New(apperrors.KindValidation, "ingest", "connectionId is required")
	}

	conn, err := s.connections.GetForTenant(ctx, tenantID, req.ConnectionID)
	if err != nil {
		return nil, err
	}

	if err := s.deductCredits(ctx, tenantID, s.opts.CreditsPerSync, "marketplace_sync"); err != nil {
		return nil, err
	}

	if len(req.Products) == 0 && len(req.Orders) == 0 {
		run, err := s.SyncConnection(ctx, tenantID, conn.ID, models.TriggerIngest)
		if run == nil {
			return nil, err
		}
		return summaryFromRun(run), err
	}
	return s.ingestPayload(ctx, conn, req)
}

func (s *SyncService) ingestPayload(ctx context.Context, conn *models.MarketplaceConnection, req *IngestRequest) (*IngestSummary, error) {
	const op = "ingest_payload"

	adapter, _, err := s.connService.Adapter(ctx, conn)
	if err != nil {
		return nil, err
	}
	decoder, ok := adapter.(clients.PayloadDecoder)
	if !ok {
		return nil, apperrors.New(apperrors.KindValidation, op, "%s does not accept pushed payloads", conn.MarketplaceType)
	}

	var products []clients.ExternalProduct
	if len(req.Products) > 0 {
		if products, err = decoder.DecodeProducts(req.Products); err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, op, err)
		}
	}
	var orders []clients.ExternalOrder
	if len(req.Orders) > 0 {
		if orders, err = decoder.DecodeOrders(req.Orders); err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, op, err)
		}
	}

	cfg, err := s.configFor(ctx, conn)
	if err != nil {
		return nil, err
	}

	start := s.now()
	run := &models.SyncRun{
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		TriggeredBy:  models.TriggerIngest,
		Status:       models.SyncRunRunning,
		StartedAt:    start,
	}
	if err := s.syncRepo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	result := newPassResult()
	var ingestErr error
	if len(products) > 0 {
		result.products = s.ingestion.IngestProducts(ctx, conn, cfg, products)
		ingestErr = result.products.Err
	}
	if ingestErr == nil && len(orders) > 0 {
		result.orders = s.ingestion.IngestOrders(ctx, conn, orders)
		ingestErr = result.orders.Err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenantId":     conn.TenantID,
		"connectionId": conn.ID,
		"marketplace":  conn.MarketplaceType,
		"runId":        run.ID,
	})
	s.finishRun(context.WithoutCancel(ctx), run, result, start, ingestErr, log)
	if ingestErr != nil {
		return nil, ingestErr
	}

	summary := summaryFromRun(run)
	summary.Unchanged = result.products.Unchanged + result.orders.Unchanged
	summary.PendingPush = result.products.PendingPush
	summary.ItemErrors = append(result.products.ItemErrors, result.orders.ItemErrors...)
	return summary, nil
}

// GetRun returns one sync run
func (s *SyncService) GetRun(ctx context.Context, tenantID string, id uuid.UUID) (*models.SyncRun, error) {
	return s.syncRepo.GetRun(ctx, tenantID, id)
}

// ListRuns returns the tenant's sync history, newest first
func (s *SyncService) ListRuns(ctx context.Context, tenantID string, filter repository.RunFilter) ([]models.SyncRun, int64, error) {
	return s.syncRepo.ListRuns(ctx, tenantID, filter)
}

// Start runs a cycle on every tick until ctx is done
func (s *SyncService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.logger.WithField("interval", interval.String()).Info("Starting scheduled sync")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduled sync stopped")
			return
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				s.logger.WithError(err).Error("Scheduled sync cycle failed")
			}
		}
	}
}

// pass pages products and then orders into ingestion. It stops at the
// first fetch error or batch-level ingestion failure.
func (s *SyncService) pass(ctx context.Context, conn *models.MarketplaceConnection, cfg *models.SyncConfig) (*passResult, error) {
	result := newPassResult()

	adapter, creds, err := s.connService.Adapter(ctx, conn)
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil && isAuthFailure(err) {
			s.connService.EvictAdapter(conn.MarketplaceType, creds)
		}
	}()

	var since time.Time
	if conn.LastSyncedAt != nil {
		since = *conn.LastSyncedAt
	}

	cursor := ""
	for {
		var page *clients.ProductPage
		page, err = adapter.FetchProducts(ctx, &clients.ProductQuery{Since: since, Cursor: cursor, Limit: s.opts.BatchSize})
		if err != nil {
			return result, err
		}
		batch := s.ingestion.IngestProducts(ctx, conn, cfg, page.Products)
		result.products.Merge(batch)
		if batch.Failed() {
			err = batch.Err
			return result, err
		}
		if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	cursor = ""
	for {
		var page *clients.OrderPage
		page, err = adapter.FetchOrders(ctx, &clients.OrderQuery{Since: since, Cursor: cursor, Limit: s.opts.BatchSize})
		if err != nil {
			return result, err
		}
		batch := s.ingestion.IngestOrders(ctx, conn, page.Orders)
		result.orders.Merge(batch)
		if batch.Failed() {
			err = batch.Err
			return result, err
		}
		if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}
	return result, nil
}

func (s *SyncService) recordFailure(ctx context.Context, conn *models.MarketplaceConnection, passErr error, log *logrus.Entry) {
	status := failureStatus(conn, passErr, s.now())
	if err := s.connections.MarkSyncFailed(ctx, conn.ID, status, passErr.Error()); err != nil {
		log.WithError(err).Error("Failed to record sync failure on connection")
	}

	if isAuthFailure(passErr) && s.notifier != nil {
		err := s.notifier.Notify(ctx, conn.TenantID, EventConnectionInvalid, map[string]interface{}{
			"connectionId": conn.ID.String(),
			"marketplace":  string(conn.MarketplaceType),
			"status":       string(status),
			"error":        passErr.Error(),
		})
		if err != nil {
			log.WithError(err).Warn("Failed to send invalid credentials notification")
		}
	}
}

func (s *SyncService) finishRun(ctx context.Context, run *models.SyncRun, result *passResult, start time.Time, passErr error, log *logrus.Entry) {
	run.ProductsCreated = result.products.Created
	run.ProductsUpdated = result.products.Updated
	run.ProductsSkipped = result.products.Skipped
	run.ProductsUnchanged = result.products.Unchanged
	run.OrdersCreated = result.orders.Created
	run.OrdersUpdated = result.orders.Updated
	run.Conflicts = result.products.Conflicts
	run.Errors = result.products.Errors + result.orders.Errors

	itemErrors := append(append([]ItemError{}, result.products.ItemErrors...), result.orders.ItemErrors...)
	if len(itemErrors) > maxRecordedItemErrors {
		itemErrors = itemErrors[:maxRecordedItemErrors]
	}
	if len(itemErrors) > 0 {
		run.ErrorDetails = models.JSONB{"itemErrors": itemErrors}
	}

	event := EventSyncCompleted
	switch {
	case passErr != nil:
		run.Status = models.SyncRunFailed
		run.ErrorMessage = passErr.Error()
		event = EventSyncFailed
	case run.Errors > 0:
		run.Status = models.SyncRunPartial
		run.CursorTo = &start
	default:
		run.Status = models.SyncRunCompleted
		run.CursorTo = &start
	}

	if err := s.syncRepo.FinishRun(ctx, run); err != nil {
		log.WithError(err).Error("Failed to save sync run")
	}

	fields := logrus.Fields{
		"status":           run.Status,
		"productsCreated":  run.ProductsCreated,
		"productsUpdated":  run.ProductsUpdated,
		"ordersCreated":    run.OrdersCreated,
		"ordersUpdated":    run.OrdersUpdated,
		"conflicts":        run.Conflicts,
		"errors":           run.Errors,
		"duration_seconds": s.now().Sub(start).Seconds(),
	}
	if passErr != nil {
		log.WithFields(fields).WithError(passErr).Warn("Sync pass failed")
	} else {
		log.WithFields(fields).Info("Sync pass finished")
	}

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, run.TenantID, event, map[string]interface{}{
			"runId":        run.ID.String(),
			"connectionId": run.ConnectionID.String(),
			"status":       string(run.Status),
			"created":      run.ProductsCreated + run.OrdersCreated,
			"updated":      run.ProductsUpdated + run.OrdersUpdated,
			"conflicts":    run.Conflicts,
			"errors":       run.Errors,
		})
		if err != nil {
			log.WithError(err).Warn("Failed to send sync notification")
		}
	}
}

func (s *SyncService) configFor(ctx context.Context, conn *models.MarketplaceConnection) (*models.SyncConfig, error) {
	if conn.SyncConfig != nil {
		return conn.SyncConfig, nil
	}
	cfg, err := s.syncRepo.GetConfig(ctx, conn.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.DefaultSyncConfig(conn.TenantID, conn.ID), nil
	}
	return cfg, err
}

func (s *SyncService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func (s *SyncService) deductCredits(ctx context.Context, tenantID string, amount int, reason string) error {
	if s.credits == nil || amount <= 0 {
		return nil
	}
	return s.credits.Deduct(ctx, tenantID, amount, reason)
}

func summaryFromRun(run *models.SyncRun) *IngestSummary {
	return &IngestSummary{
		RunID:     run.ID,
		Status:    run.Status,
		Created:   run.ProductsCreated + run.OrdersCreated,
		Updated:   run.ProductsUpdated + run.OrdersUpdated,
		Unchanged: run.ProductsUnchanged,
		Skipped:   run.ProductsSkipped,
		Conflicts: run.Conflicts,
		Errors:    run.Errors,
	}
}
