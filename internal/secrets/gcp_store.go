package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketplace-sync-service/internal/apperrors"
)

// secretClient is the subset of the Secret Manager client used by GCPStore
type secretClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
	Close() error
}

type cacheEntry struct {
	creds     Credentials
	expiresAt time.Time
}

// GCPStore writes every stored credential set to its own Secret Manager
// secret and always reads the latest version. Secrets are never shared
// between connections, so deleting one cannot orphan another.
type GCPStore struct {
	client    secretClient
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

// NewGCPStore creates a Secret Manager backed credential store
func NewGCPStore(ctx context.Context, projectID string, cacheTTL time.Duration) (*GCPStore, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return newGCPStore(client, projectID, cacheTTL), nil
}

func newGCPStore(client secretClient, projectID string, cacheTTL time.Duration) *GCPStore {
	return &GCPStore{
		client:    client,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  cacheTTL,
	}
}

// Close closes the Secret Manager client
func (s *GCPStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// SecretName builds the secret resource name of one stored credential set.
// Format: projects/{project}/secrets/marketplace-{tenant}-{marketplace}-{id}
func (s *GCPStore) SecretName(tenantID, marketplace, id string) string {
	secretID := fmt.Sprintf("marketplace-%s-%s-%s",
		sanitizeSecretID(tenantID),
		sanitizeSecretID(strings.ToLower(marketplace)),
		sanitizeSecretID(id),
	)
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, secretID)
}

// Store creates a new secret holding creds and returns its name as reference
func (s *GCPStore) Store(ctx context.Context, tenantID, marketplace string, creds Credentials) (string, error) {
	data, err := encodeSecret(tenantID, marketplace, creds)
	if err != nil {
		return "", err
	}

	name := s.SecretName(tenantID, marketplace, uuid.NewString())
	_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   fmt.Sprintf("projects/%s", s.projectID),
		SecretId: extractSecretID(name),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create secret: %w", err)
	}

	_, err = s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  name,
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	})
	if err != nil {
		return "", fmt.Errorf("failed to add secret version: %w", err)
	}

	s.invalidate(name)
	return name, nil
}

// Get reads the latest version of the referenced secret
func (s *GCPStore) Get(ctx context.Context, reference string) (Credentials, error) {
	if !strings.HasPrefix(reference, "projects/") || !strings.Contains(reference, "/secrets/") {
		return nil, apperrors.New(apperrors.KindCredentialNotFound, "credentials.get", "invalid secret reference")
	}

	s.cacheMu.RLock()
	if entry, ok := s.cache[reference]; ok && time.Now().Before(entry.expiresAt) {
		s.cacheMu.RUnlock()
		return entry.creds, nil
	}
	s.cacheMu.RUnlock()

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: reference + "/versions/latest",
	})
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.FailedPrecondition:
			return nil, apperrors.Wrap(apperrors.KindCredentialNotFound, "credentials.get", err)
		default:
			return nil, fmt.Errorf("failed to access secret: %w", err)
		}
	}

	secret, err := decodeSecret("credentials.get", result.GetPayload().GetData())
	if err != nil {
		return nil, err
	}

	if s.cacheTTL > 0 {
		s.cacheMu.Lock()
		s.cache[reference] = &cacheEntry{creds: secret.Credentials, expiresAt: time.Now().Add(s.cacheTTL)}
		s.cacheMu.Unlock()
	}
	return secret.Credentials, nil
}

// Delete removes the secret. Deleting an absent secret succeeds.
func (s *GCPStore) Delete(ctx context.Context, reference string) error {
	s.invalidate(reference)
	if reference == "" {
		return nil
	}

	err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: reference})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

func (s *GCPStore) invalidate(reference string) {
	s.cacheMu.Lock()
	delete(s.cache, reference)
	s.cacheMu.Unlock()
}

// sanitizeSecretID replaces characters not allowed in secret IDs
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}

func extractSecretID(secretName string) string {
	parts := strings.Split(secretName, "/")
	if len(parts) >= 4 {
		return parts[3]
	}
	return secretName
}
