package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/secrets"
)

// fakeAdapter serves canned pages and records what it was asked to do
type fakeAdapter struct {
	mt models.MarketplaceType

	mu            sync.Mutex
	testErr       error
	productPages  [][]clients.ExternalProduct
	orderPages    [][]clients.ExternalOrder
	productErr    error
	orderErr      error
	productCalls  []clients.ProductQuery
	orderCalls    []clients.OrderQuery
	updates       []*clients.ProductUpdate
	inventory     []clients.InventoryUpdate
	updateErr     error
	webhookEvent  *clients.WebhookEvent
	webhookErr    error
	started       chan struct{}
	block         chan struct{}
	decodeEnabled bool
}

func newFakeAdapter(mt models.MarketplaceType) *fakeAdapter {
	return &fakeAdapter{mt: mt, decodeEnabled: true}
}

func (a *fakeAdapter) Marketplace() models.MarketplaceType { return a.mt }

func (a *fakeAdapter) TestConnection(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.testErr != nil {
		return false, a.testErr
	}
	return true, nil
}

func (a *fakeAdapter) FetchProducts(ctx context.Context, query *clients.ProductQuery) (*clients.ProductPage, error) {
	a.mu.Lock()
	a.productCalls = append(a.productCalls, *query)
	started, block := a.started, a.block
	a.mu.Unlock()

	if block != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.productErr != nil {
		return nil, a.productErr
	}
	idx := pageIndex(query.Cursor)
	if idx >= len(a.productPages) {
		return &clients.ProductPage{}, nil
	}
	page := &clients.ProductPage{Products: a.productPages[idx]}
	if idx+1 < len(a.productPages) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return page, nil
}

func (a *fakeAdapter) FetchOrders(ctx context.Context, query *clients.OrderQuery) (*clients.OrderPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orderCalls = append(a.orderCalls, *query)
	if a.orderErr != nil {
		return nil, a.orderErr
	}
	idx := pageIndex(query.Cursor)
	if idx >= len(a.orderPages) {
		return &clients.OrderPage{}, nil
	}
	page := &clients.OrderPage{Orders: a.orderPages[idx]}
	if idx+1 < len(a.orderPages) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return page, nil
}

func (a *fakeAdapter) CreateProduct(ctx context.Context, input *clients.ProductInput) (*clients.ExternalProduct, error) {
	return &clients.ExternalProduct{ID: "new-" + input.SKU, SKU: input.SKU}, nil
}

func (a *fakeAdapter) UpdateProduct(ctx context.Context, externalID string, update *clients.ProductUpdate) (*clients.ExternalProduct, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.updateErr != nil {
		return nil, a.updateErr
	}
	a.updates = append(a.updates, update)
	return &clients.ExternalProduct{ID: externalID, SKU: update.SKU}, nil
}

func (a *fakeAdapter) UpdateInventory(ctx context.Context, updates []clients.InventoryUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.updateErr != nil {
		return a.updateErr
	}
	a.inventory = append(a.inventory, updates...)
	return nil
}

func (a *fakeAdapter) CancelOrder(ctx context.Context, externalOrderID, reason string) error {
	return nil
}

func (a *fakeAdapter) HandleWebhook(ctx context.Context, req *clients.WebhookRequest) (*clients.WebhookEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.webhookErr != nil {
		return nil, a.webhookErr
	}
	if a.webhookEvent == nil {
		return nil, apperrors.New(apperrors.KindValidation, "handle_webhook", "no event configured")
	}
	event := *a.webhookEvent
	return &event, nil
}

func (a *fakeAdapter) DecodeProducts(data []byte) ([]clients.ExternalProduct, error) {
	var products []clients.ExternalProduct
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (a *fakeAdapter) DecodeOrders(data []byte) ([]clients.ExternalOrder, error) {
	var orders []clients.ExternalOrder
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (a *fakeAdapter) productQueries() []clients.ProductQuery {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]clients.ProductQuery(nil), a.productCalls...)
}

func pageIndex(cursor string) int {
	if cursor == "" {
		return 0
	}
	idx, err := strconv.Atoi(cursor)
	if err != nil {
		return 0
	}
	return idx
}

// fakeProvider picks an adapter by access token, falling back to the
// marketplace default
type fakeProvider struct {
	mu      sync.Mutex
	byType  map[models.MarketplaceType]*fakeAdapter
	byToken map[string]*fakeAdapter
	evicted int
}

func newFakeProvider(adapters ...*fakeAdapter) *fakeProvider {
	p := &fakeProvider{
		byType:  make(map[models.MarketplaceType]*fakeAdapter),
		byToken: make(map[string]*fakeAdapter),
	}
	for _, a := range adapters {
		p.byType[a.mt] = a
	}
	return p
}

func (p *fakeProvider) Supports(mt models.MarketplaceType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byType[mt]
	return ok
}

func (p *fakeProvider) Get(ctx context.Context, mt models.MarketplaceType, creds secrets.Credentials) (clients.Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.byToken[creds.Get("access_token")]; ok {
		return a, nil
	}
	if a, ok := p.byType[mt]; ok {
		return a, nil
	}
	return nil, apperrors.UnsupportedMarketplace(string(mt))
}

func (p *fakeProvider) Evict(mt models.MarketplaceType, creds secrets.Credentials) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evicted++
}

func (p *fakeProvider) evictions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evicted
}

// memoryStore is an in-memory CredentialStore
type memoryStore struct {
	mu    sync.Mutex
	creds map[string]secrets.Credentials
	seq   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{creds: make(map[string]secrets.Credentials)}
}

func (s *memoryStore) Store(ctx context.Context, tenantID, marketplace string, creds secrets.Credentials) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ref := "ref-" + tenantID + "-" + marketplace + "-" + strconv.Itoa(s.seq)
	s.creds[ref] = creds
	return ref, nil
}

func (s *memoryStore) Get(ctx context.Context, reference string) (secrets.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.creds[reference]
	if !ok {
		return nil, apperrors.New(apperrors.KindCredentialNotFound, "get_credentials", "no credentials for %s", reference)
	}
	return creds, nil
}

func (s *memoryStore) Delete(ctx context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, reference)
	return nil
}

func (s *memoryStore) put(reference string, creds secrets.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[reference] = creds
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creds)
}

// fakeLedger holds a per-tenant balance; tenants without one are unlimited
type fakeLedger struct {
	mu      sync.Mutex
	balance map[string]int
	charges []string
}

func (l *fakeLedger) Deduct(ctx context.Context, tenantID string, amount int, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balance[tenantID]; ok {
		if balance < amount {
			return apperrors.New(apperrors.KindInsufficientCredits, "deduct_credits", "tenant %s has %d credits", tenantID, balance)
		}
		l.balance[tenantID] = balance - amount
	}
	l.charges = append(l.charges, reason)
	return nil
}

// harness wires the services over the sqlite fixture and the fakes above
type harness struct {
	*fixture
	store       *memoryStore
	shopify     *fakeAdapter
	provider    *fakeProvider
	ledger      *fakeLedger
	locker      *ConnectionLocker
	connService *ConnectionService
	syncService *SyncService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := newFixture(t)
	h := &harness{
		fixture: f,
		store:   newMemoryStore(),
		shopify: newFakeAdapter(models.MarketplaceShopify),
		ledger:  &fakeLedger{balance: map[string]int{}},
		locker:  NewConnectionLocker(nil, 0),
	}
	h.provider = newFakeProvider(h.shopify, newFakeAdapter(models.MarketplaceDukaan))
	h.connService = NewConnectionService(f.connections, f.syncRepo, f.products, h.store, h.provider, testLogger())
	h.syncService = NewSyncService(f.connections, f.syncRepo, h.connService, f.ingestion, h.locker, f.notifier, h.ledger,
		SyncOptions{BatchSize: 2, MaxParallel: 2, CreditsPerSync: 1}, testLogger())
	return h
}

// connect creates a connection whose stored credentials carry token
func (h *harness) connect(t *testing.T, tenantID string, mt models.MarketplaceType, token string) *models.MarketplaceConnection {
	t.Helper()
	conn := h.connection(t, tenantID, mt)
	h.store.put(conn.CredentialReference, secrets.Credentials{"access_token": token})
	return conn
}
