package secrets

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketplace-sync-service/internal/apperrors"
)

// fakeSecretClient keeps secret versions in memory
type fakeSecretClient struct {
	mu       sync.Mutex
	versions map[string][][]byte
	accesses int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{versions: make(map[string][][]byte)}
}

var _ secretClient = (*fakeSecretClient)(nil)

func (f *fakeSecretClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accesses++

	name := req.Name[:len(req.Name)-len("/versions/latest")]
	versions, ok := f.versions[name]
	if !ok || len(versions) == 0 {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.Name,
		Payload: &secretmanagerpb.SecretPayload{Data: versions[len(versions)-1]},
	}, nil
}

func (f *fakeSecretClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.Parent + "/secrets/" + req.SecretId
	if _, ok := f.versions[name]; ok {
		return nil, status.Error(codes.AlreadyExists, "already exists")
	}
	f.versions[name] = nil
	return &secretmanagerpb.Secret{Name: name}, nil
}

func (f *fakeSecretClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.versions[req.Parent]; !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	f.versions[req.Parent] = append(f.versions[req.Parent], req.Payload.Data)
	return &secretmanagerpb.SecretVersion{Name: req.Parent + "/versions/1"}, nil
}

func (f *fakeSecretClient) DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.versions[req.Name]; !ok {
		return status.Error(codes.NotFound, "secret not found")
	}
	delete(f.versions, req.Name)
	return nil
}

func (f *fakeSecretClient) Close() error { return nil }

func TestGCPStoreStoreAndGetLatest(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	store := newGCPStore(client, "proj", 0)

	ref, err := store.Store(ctx, "tenant 1", "SHOPIFY", Credentials{"access_token": "old"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "projects/proj/secrets/marketplace-tenant-1-shopify-"))

	// an out-of-band rotation adds a version to the same secret
	data, err := encodeSecret("tenant 1", "SHOPIFY", Credentials{"access_token": "new"})
	require.NoError(t, err)
	_, err = client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  ref,
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	})
	require.NoError(t, err)

	creds, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "new", creds.Get("access_token"))
}

func TestGCPStoreSecretPerStore(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	store := newGCPStore(client, "proj", 0)

	winner, err := store.Store(ctx, "t1", "SHOPIFY", Credentials{"access_token": "winner"})
	require.NoError(t, err)
	loser, err := store.Store(ctx, "t1", "SHOPIFY", Credentials{"access_token": "loser"})
	require.NoError(t, err)
	assert.NotEqual(t, winner, loser)

	// rolling back one store leaves the other intact
	require.NoError(t, store.Delete(ctx, loser))
	creds, err := store.Get(ctx, winner)
	require.NoError(t, err)
	assert.Equal(t, "winner", creds.Get("access_token"))
}

func TestGCPStoreGetMissing(t *testing.T) {
	store := newGCPStore(newFakeSecretClient(), "proj", 0)

	_, err := store.Get(context.Background(), "projects/proj/secrets/missing")
	assert.True(t, apperrors.Is(err, apperrors.KindCredentialNotFound))

	_, err = store.Get(context.Background(), "garbage")
	assert.True(t, apperrors.Is(err, apperrors.KindCredentialNotFound))
}

func TestGCPStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newGCPStore(newFakeSecretClient(), "proj", time.Minute)

	ref, err := store.Store(ctx, "t1", "DUKAAN", Credentials{"api_key": "k"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref))

	_, err = store.Get(ctx, ref)
	assert.True(t, apperrors.Is(err, apperrors.KindCredentialNotFound))
}

func TestGCPStoreCachesReads(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	store := newGCPStore(client, "proj", time.Minute)

	ref, err := store.Store(ctx, "t1", "AMAZON", Credentials{"refresh_token": "r"})
	require.NoError(t, err)

	_, err = store.Get(ctx, ref)
	require.NoError(t, err)
	_, err = store.Get(ctx, ref)
	require.NoError(t, err)

	assert.Equal(t, 1, client.accesses)
}
