package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
	"marketplace-sync-service/internal/secrets"
)

// ConnectionService handles marketplace connection operations
type ConnectionService struct {
	repo     *repository.ConnectionRepository
	syncRepo *repository.SyncRepository
	products *repository.ProductRepository
	store    secrets.CredentialStore
	adapters AdapterProvider
	logger   *logrus.Entry
	now      func() time.Time
}

// NewConnectionService creates a new connection service
func NewConnectionService(
	repo *repository.ConnectionRepository,
	syncRepo *repository.SyncRepository,
	products *repository.ProductRepository,
	store secrets.CredentialStore,
	adapters AdapterProvider,
	logger *logrus.Entry,
) *ConnectionService {
	return &ConnectionService{
		repo:     repo,
		syncRepo: syncRepo,
		products: products,
		store:    store,
		adapters: adapters,
		logger:   logger.WithField("component", "connections"),
		now:      time.Now,
	}
}

// CreateConnectionRequest contains the data for creating a new connection
type CreateConnectionRequest struct {
	TenantID        string                 `json:"-"`
	MarketplaceType models.MarketplaceType `json:"marketplaceType"`
	DisplayName     string                 `json:"displayName"`
	ExternalStoreID string                 `json:"externalStoreId,omitempty"`
	Credentials     secrets.Credentials    `json:"credentials"`
	ExpiresAt       *time.Time             `json:"expiresAt,omitempty"`
	CreatedBy       string                 `json:"-"`
}

// UpdateConnectionRequest contains the data for updating a connection
type UpdateConnectionRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	IsEnabled   *bool   `json:"isEnabled,omitempty"`
}

// ConnectionTestResult is the outcome of a credential check
type ConnectionTestResult struct {
	Success   bool                    `json:"success"`
	Status    models.ConnectionStatus `json:"status"`
	Message   string                  `json:"message,omitempty"`
	CheckedAt time.Time               `json:"checkedAt"`
}

// Create validates the credentials against the marketplace, stores them and
// creates the connection. Nothing is persisted when validation fails.
func (s *ConnectionService) Create(ctx context.Context, req *CreateConnectionRequest) (*models.MarketplaceConnection, error) {
	const op = "create_connection"

	if !req.MarketplaceType.IsValid() || !s.adapters.Supports(req.MarketplaceType) {
		return nil, apperrors.UnsupportedMarketplace(string(req.MarketplaceType))
	}
	if len(req.Credentials) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, op, "credentials are required")
	}

	if _, err := s.repo.GetByTenantAndType(ctx, req.TenantID, req.MarketplaceType); err == nil {
		return nil, apperrors.ErrConnectionExists
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if err := s.validate(ctx, req.MarketplaceType, req.Credentials); err != nil {
		return nil, err
	}

	reference, err := s.store.Store(ctx, req.TenantID, string(req.MarketplaceType), req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	now := s.now()
	displayName := req.DisplayName
	if displayName == "" {
		displayName = string(req.MarketplaceType)
	}
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		expiresAt = credentialExpiry(req.Credentials)
	}

	connection := &models.MarketplaceConnection{
		TenantID:            req.TenantID,
		MarketplaceType:     req.MarketplaceType,
		DisplayName:         displayName,
		AuthType:            models.AuthTypeFor(req.MarketplaceType),
		Status:              models.ConnectionConnected,
		IsEnabled:           true,
		ExternalStoreID:     req.ExternalStoreID,
		CredentialReference: reference,
		ExpiresAt:           expiresAt,
		LastChecked:         &now,
		CreatedBy:           req.CreatedBy,
	}

	if err := s.repo.Create(ctx, connection); err != nil {
		// Rollback secret creation if DB fails (best effort)
		if delErr := s.store.Delete(ctx, reference); delErr != nil {
			s.logger.WithError(delErr).WithField("tenantId", req.TenantID).Warn("Failed to remove credentials after create failure")
		}
		return nil, err
	}

	cfg := models.DefaultSyncConfig(connection.TenantID, connection.ID)
	if err := s.syncRepo.SaveConfig(ctx, cfg); err != nil {
		s.logger.WithError(err).WithField("connectionId", connection.ID).Warn("Failed to create default sync config")
	} else {
		connection.SyncConfig = cfg
	}

	s.logger.WithFields(logrus.Fields{
		"tenantId":     connection.TenantID,
		"connectionId": connection.ID,
		"marketplace":  connection.MarketplaceType,
	}).Info("Marketplace connection created")
	return connection, nil
}

// Get retrieves a tenant's connection
func (s *ConnectionService) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.MarketplaceConnection, error) {
	return s.repo.GetForTenant(ctx, tenantID, id)
}

// List retrieves connections for a tenant
func (s *ConnectionService) List(ctx context.Context, tenantID string, opts repository.ListOptions) ([]models.MarketplaceConnection, int64, error) {
	return s.repo.ListByTenant(ctx, tenantID, opts)
}

// Update updates a connection's settings
func (s *ConnectionService) Update(ctx context.Context, tenantID string, id uuid.UUID, req *UpdateConnectionRequest) (*models.MarketplaceConnection, error) {
	if req.DisplayName == nil && req.IsEnabled == nil {
		return nil, apperrors.ErrNoUpdateFields
	}

	connection, err := s.repo.GetForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if req.DisplayName != nil {
		connection.DisplayName = *req.DisplayName
	}
	if req.IsEnabled != nil {
		connection.IsEnabled = *req.IsEnabled
	}
	if err := s.repo.Update(ctx, connection); err != nil {
		return nil, err
	}
	return connection, nil
}

// UpdateCredentials validates and stores new credentials for a connection
func (s *ConnectionService) UpdateCredentials(ctx context.Context, tenantID string, id uuid.UUID, creds secrets.Credentials) (*models.MarketplaceConnection, error) {
	if len(creds) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "update_credentials", "credentials are required")
	}

	connection, err := s.repo.GetForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := s.validate(ctx, connection.MarketplaceType, creds); err != nil {
		return nil, err
	}

	// Old adapter is evicted once the new credentials are in place
	previous, prevErr := s.store.Get(ctx, connection.CredentialReference)

	reference, err := s.store.Store(ctx, connection.TenantID, string(connection.MarketplaceType), creds)
	if err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	expiresAt := credentialExpiry(creds)
	if err := s.repo.UpdateCredentialReference(ctx, connection.ID, reference, expiresAt); err != nil {
		return nil, err
	}

	if prevErr == nil {
		s.adapters.Evict(connection.MarketplaceType, previous)
	}
	if reference != connection.CredentialReference {
		if err := s.store.Delete(ctx, connection.CredentialReference); err != nil {
			s.logger.WithError(err).WithField("connectionId", connection.ID).Warn("Failed to delete replaced credentials")
		}
	}

	connection.CredentialReference = reference
	connection.ExpiresAt = expiresAt
	connection.Status = models.ConnectionConnected
	connection.LastError = ""
	return connection, nil
}

// Test checks the stored credentials against the marketplace and records
// the outcome on the connection.
func (s *ConnectionService) Test(ctx context.Context, tenantID string, id uuid.UUID) (*ConnectionTestResult, error) {
	connection, err := s.repo.GetForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	result := &ConnectionTestResult{Success: true, Status: models.ConnectionConnected, CheckedAt: s.now()}

	adapter, _, err := s.Adapter(ctx, connection)
	if err == nil {
		var ok bool
		ok, err = adapter.TestConnection(ctx)
		if err == nil && !ok {
			err = apperrors.New(apperrors.KindAuthentication, "test_connection", "marketplace rejected the credentials")
		}
	}
	if err != nil {
		if !isConnectionFailure(err) {
			return nil, err
		}
		result.Success = false
		result.Status = failureStatus(connection, err, result.CheckedAt)
		result.Message = err.Error()
	}

	if err := s.repo.RecordCheck(ctx, connection.ID, result.Status, result.Message, result.CheckedAt); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the stored credentials, the cached adapter and the connection
func (s *ConnectionService) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	connection, err := s.repo.GetForTenant(ctx, tenantID, id)
	if err != nil {
		return err
	}

	creds, credsErr := s.store.Get(ctx, connection.CredentialReference)
	if err := s.store.Delete(ctx, connection.CredentialReference); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if credsErr == nil {
		s.adapters.Evict(connection.MarketplaceType, creds)
	}

	if err := s.products.DeleteReferencesByConnection(ctx, connection.ID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, connection.ID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"tenantId":     connection.TenantID,
		"connectionId": connection.ID,
		"marketplace":  connection.MarketplaceType,
	}).Info("Marketplace connection deleted")
	return nil
}

// Adapter resolves the connection's credentials and returns its adapter
func (s *ConnectionService) Adapter(ctx context.Context, connection *models.MarketplaceConnection) (clients.Adapter, secrets.Credentials, error) {
	creds, err := s.store.Get(ctx, connection.CredentialReference)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := s.adapters.Get(ctx, connection.MarketplaceType, creds)
	if err != nil {
		return nil, nil, err
	}
	return adapter, creds, nil
}

// EvictAdapter drops the cached adapter after its credentials were rejected
func (s *ConnectionService) EvictAdapter(mt models.MarketplaceType, creds secrets.Credentials) {
	if creds != nil {
		s.adapters.Evict(mt, creds)
	}
}

// validate builds a throwaway adapter and checks the credentials
func (s *ConnectionService) validate(ctx context.Context, mt models.MarketplaceType, creds secrets.Credentials) error {
	adapter, err := s.adapters.Get(ctx, mt, creds)
	if err != nil {
		return err
	}

	ok, err := adapter.TestConnection(ctx)
	if err == nil && !ok {
		err = apperrors.New(apperrors.KindAuthentication, "test_connection", "marketplace rejected the credentials")
	}
	if err != nil {
		s.adapters.Evict(mt, creds)
		return err
	}
	return nil
}

// isConnectionFailure reports errors that describe the marketplace link
// rather than this service
func isConnectionFailure(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindAuthentication,
		apperrors.KindOperationFailed,
		apperrors.KindRateLimitExceeded,
		apperrors.KindTransientNetwork,
		apperrors.KindTimeout,
		apperrors.KindCredentialNotFound,
		apperrors.KindCredentialDecryptFailed,
		apperrors.KindValidation:
		return true
	default:
		return false
	}
}

// isAuthFailure reports rejected or unusable credentials
func isAuthFailure(err error) bool {
	return apperrors.Is(err, apperrors.KindAuthentication) ||
		apperrors.Is(err, apperrors.KindCredentialNotFound) ||
		apperrors.Is(err, apperrors.KindCredentialDecryptFailed)
}

// failureStatus is EXPIRED for auth failures past the credential expiry
func failureStatus(connection *models.MarketplaceConnection, err error, now time.Time) models.ConnectionStatus {
	if isAuthFailure(err) && connection.IsExpired(now) {
		return models.ConnectionExpired
	}
	return models.ConnectionError
}

// credentialExpiry reads an RFC 3339 token_expires_at credential, if any
func credentialExpiry(creds secrets.Credentials) *time.Time {
	raw := strings.TrimSpace(creds.Get("token_expires_at"))
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
