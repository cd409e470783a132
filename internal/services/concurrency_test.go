package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/cache"
)

func TestConnectionLocker_Local(t *testing.T) {
	locker := NewConnectionLocker(nil, 0)
	ctx := context.Background()
	id := uuid.New()

	release, err := locker.TryLock(ctx, id)
	require.NoError(t, err)
	assert.True(t, locker.IsLocked(id))

	_, err = locker.TryLock(ctx, id)
	assert.ErrorIs(t, err, apperrors.ErrSyncInProgress)

	// other connections are independent
	other, err := locker.TryLock(ctx, uuid.New())
	require.NoError(t, err)
	other()

	release()
	assert.False(t, locker.IsLocked(id))
}

func TestConnectionLocker_SharedAcrossInstances(t *testing.T) {
	shared := cache.NewMemoryLock()
	first := NewConnectionLocker(shared, time.Minute)
	second := NewConnectionLocker(shared, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	release, err := first.TryLock(ctx, id)
	require.NoError(t, err)

	_, err = second.TryLock(ctx, id)
	assert.ErrorIs(t, err, apperrors.ErrSyncInProgress)
	assert.False(t, second.IsLocked(id))

	release()
	release()

	again, err := second.TryLock(ctx, id)
	require.NoError(t, err)
	again()
}
