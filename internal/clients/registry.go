package clients

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/secrets"
)

// Deps are the shared collaborators handed to every adapter factory
type Deps struct {
	Limiter     *RateLimiter
	RetryPolicy RetryPolicy
	HTTPClient  *http.Client
	Logger      *logrus.Entry
	// BaseURLs overrides the API endpoint per marketplace
	BaseURLs map[models.MarketplaceType]string
}

// BaseURL returns the configured endpoint override, or def
func (d Deps) BaseURL(mt models.MarketplaceType, def string) string {
	if u, ok := d.BaseURLs[mt]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return def
}

// Factory builds an adapter from decrypted credentials
type Factory func(creds secrets.Credentials, deps Deps) (Adapter, error)

// Registry maps marketplaces to factories and caches one adapter per
// (marketplace, credentials) pair.
type Registry struct {
	deps Deps

	mu        sync.RWMutex
	factories map[models.MarketplaceType]Factory
	adapters  map[string]Adapter
}

// NewRegistry creates an empty registry
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:      deps,
		factories: make(map[models.MarketplaceType]Factory),
		adapters:  make(map[string]Adapter),
	}
}

// Register associates a factory with a marketplace
func (r *Registry) Register(mt models.MarketplaceType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[mt] = factory
}

// Supports reports whether a factory is registered
func (r *Registry) Supports(mt models.MarketplaceType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[mt]
	return ok
}

// CacheKey identifies a cached adapter
func CacheKey(mt models.MarketplaceType, creds secrets.Credentials) string {
	return string(mt) + ":" + creds.Fingerprint()
}

// Get returns the cached adapter for the credentials, creating it on first use.
// Concurrent callers with the same key share one instance.
func (r *Registry) Get(ctx context.Context, mt models.MarketplaceType, creds secrets.Credentials) (Adapter, error) {
	key := CacheKey(mt, creds)

	r.mu.RLock()
	adapter, ok := r.adapters[key]
	r.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.adapters[key]; ok {
		return adapter, nil
	}

	factory, ok := r.factories[mt]
	if !ok {
		return nil, apperrors.UnsupportedMarketplace(string(mt))
	}

	adapter, err := factory(creds, r.deps)
	if err != nil {
		return nil, err
	}
	r.adapters[key] = adapter
	return adapter, nil
}

// Evict drops the cached adapter for one set of credentials
func (r *Registry) Evict(mt models.MarketplaceType, creds secrets.Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, CacheKey(mt, creds))
}

// EvictMarketplace drops every cached adapter of a marketplace
func (r *Registry) EvictMarketplace(mt models.MarketplaceType) {
	prefix := string(mt) + ":"

	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.adapters {
		if strings.HasPrefix(key, prefix) {
			delete(r.adapters, key)
		}
	}
}

// Len returns the number of cached adapters
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
