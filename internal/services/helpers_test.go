package services

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/database/dbtest"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

type notification struct {
	TenantID string
	Event    string
	Payload  map[string]interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, tenantID, event string, payload map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{TenantID: tenantID, Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Event == event {
			c++
		}
	}
	return c
}

type fixture struct {
	db          *gorm.DB
	connections *repository.ConnectionRepository
	syncRepo    *repository.SyncRepository
	products    *repository.ProductRepository
	inventory   *repository.InventoryRepository
	orders      *repository.OrderRepository
	conflicts   *repository.ConflictRepository
	webhooks    *repository.WebhookRepository
	notifier    *recordingNotifier
	reconciler  *StockReconciler
	ingestion   *IngestionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		db:          db,
		connections: repository.NewConnectionRepository(db),
		syncRepo:    repository.NewSyncRepository(db),
		products:    repository.NewProductRepository(db),
		inventory:   repository.NewInventoryRepository(db),
		orders:      repository.NewOrderRepository(db),
		conflicts:   repository.NewConflictRepository(db),
		webhooks:    repository.NewWebhookRepository(db),
		notifier:    &recordingNotifier{},
	}
	f.reconciler = NewStockReconciler(db, f.notifier, testLogger())
	f.ingestion = NewIngestionService(f.products, f.orders, f.conflicts, f.reconciler, f.notifier, testLogger())
	return f
}

func (f *fixture) connection(t *testing.T, tenantID string, mt models.MarketplaceType) *models.MarketplaceConnection {
	t.Helper()
	conn := &models.MarketplaceConnection{
		TenantID:            tenantID,
		MarketplaceType:     mt,
		DisplayName:         string(mt),
		AuthType:            models.AuthTypeFor(mt),
		Status:              models.ConnectionConnected,
		IsEnabled:           true,
		CredentialReference: "ref-" + tenantID + "-" + string(mt),
	}
	require.NoError(t, f.connections.Create(context.Background(), conn))
	return conn
}
