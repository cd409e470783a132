package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/encryption"
)

const aeadRefPrefix = "v1."

// AEADStore encrypts credentials into a self-contained reference of the form
// v1.<tenant>.<marketplace>.<sealed>, each part base64url encoded. Tenant and
// marketplace are the additional data of the seal. Nothing is persisted
// outside the reference itself.
type AEADStore struct {
	aead *encryption.AEAD
}

// NewAEADStore creates a store from a 32-byte key
func NewAEADStore(key []byte) (*AEADStore, error) {
	aead, err := encryption.NewAEAD(key)
	if err != nil {
		return nil, err
	}
	return &AEADStore{aead: aead}, nil
}

// Store seals the credentials and returns the encoded envelope as reference
func (s *AEADStore) Store(ctx context.Context, tenantID, marketplace string, creds Credentials) (string, error) {
	data, err := encodeSecret(tenantID, marketplace, creds)
	if err != nil {
		return "", err
	}

	sealed, err := s.aead.Seal(data, additionalData(tenantID, marketplace))
	if err != nil {
		return "", err
	}
	return aeadRefPrefix + strings.Join([]string{
		base64.RawURLEncoding.EncodeToString([]byte(tenantID)),
		base64.RawURLEncoding.EncodeToString([]byte(marketplace)),
		base64.RawURLEncoding.EncodeToString(sealed),
	}, "."), nil
}

// Get decodes the envelope and opens it against its tenant and marketplace
func (s *AEADStore) Get(ctx context.Context, reference string) (Credentials, error) {
	const op = "credentials.get"

	if !strings.HasPrefix(reference, aeadRefPrefix) {
		return nil, apperrors.New(apperrors.KindCredentialNotFound, op, "invalid credential reference")
	}
	parts := strings.Split(strings.TrimPrefix(reference, aeadRefPrefix), ".")
	if len(parts) != 3 {
		return nil, apperrors.New(apperrors.KindCredentialNotFound, op, "invalid credential reference")
	}

	decoded := make([][]byte, len(parts))
	for i, part := range parts {
		b, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindCredentialNotFound, op, err)
		}
		decoded[i] = b
	}
	tenantID, marketplace, sealed := string(decoded[0]), string(decoded[1]), decoded[2]

	data, err := s.aead.Open(sealed, additionalData(tenantID, marketplace))
	if err != nil {
		if errors.Is(err, encryption.ErrMalformedCiphertext) {
			return nil, apperrors.Wrap(apperrors.KindCredentialNotFound, op, err)
		}
		return nil, apperrors.Wrap(apperrors.KindCredentialDecryptFailed, op, err)
	}

	secret, err := decodeSecret(op, data)
	if err != nil {
		return nil, err
	}
	if secret.TenantID != tenantID || secret.Marketplace != marketplace {
		return nil, apperrors.New(apperrors.KindCredentialDecryptFailed, op, "credential envelope does not match its contents")
	}
	return secret.Credentials, nil
}

func additionalData(tenantID, marketplace string) []byte {
	return []byte(aeadRefPrefix + tenantID + "\x00" + marketplace)
}

// Delete is a no-op: the reference is the only copy of the secret
func (s *AEADStore) Delete(ctx context.Context, reference string) error {
	return nil
}
