// Package secrets stores per-connection marketplace credentials. Connections
// only ever hold the opaque reference returned by a CredentialStore.
package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"marketplace-sync-service/internal/apperrors"
)

// Credentials is the raw secret material for one marketplace connection
type Credentials map[string]string

// Get returns the value for key, or "" when absent
func (c Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	return c[key]
}

// Fingerprint is a stable SHA-256 over the sorted key/value pairs.
// A token refresh changes the fingerprint.
func (c Credentials) Fingerprint() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(c[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CredentialStore persists credentials and hands back an opaque reference
type CredentialStore interface {
	Store(ctx context.Context, tenantID, marketplace string, creds Credentials) (string, error)
	Get(ctx context.Context, reference string) (Credentials, error)
	Delete(ctx context.Context, reference string) error
}

// storedSecret is the JSON payload written by both backends
type storedSecret struct {
	TenantID    string      `json:"tenant_id"`
	Marketplace string      `json:"marketplace"`
	Credentials Credentials `json:"credentials"`
	StoredAt    time.Time   `json:"stored_at"`
}

func encodeSecret(tenantID, marketplace string, creds Credentials) ([]byte, error) {
	data, err := json.Marshal(storedSecret{
		TenantID:    tenantID,
		Marketplace: marketplace,
		Credentials: creds,
		StoredAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return data, nil
}

func decodeSecret(op string, data []byte) (*storedSecret, error) {
	var secret storedSecret
	if err := json.Unmarshal(data, &secret); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCredentialDecryptFailed, op, fmt.Errorf("failed to unmarshal credentials: %w", err))
	}
	if secret.Credentials == nil {
		secret.Credentials = Credentials{}
	}
	return &secret, nil
}
