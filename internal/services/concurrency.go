package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketplace-sync-service/internal/apperrors"
)

// ConnectionLocker enforces at most one sync pass per connection. The
// in-process set covers this instance; the optional distributed lock covers
// the others.
type ConnectionLocker struct {
	mu          sync.Mutex
	held        map[uuid.UUID]struct{}
	distributed DistributedLock
	ttl         time.Duration
}

// NewConnectionLocker creates a locker. distributed may be nil.
func NewConnectionLocker(distributed DistributedLock, ttl time.Duration) *ConnectionLocker {
	if ttl <= 0 {
		ttl = 35 * time.Minute
	}
	return &ConnectionLocker{
		held:        make(map[uuid.UUID]struct{}),
		distributed: distributed,
		ttl:         ttl,
	}
}

// TryLock acquires the connection without waiting. It fails with
// ErrSyncInProgress when a pass is already running.
func (l *ConnectionLocker) TryLock(ctx context.Context, connectionID uuid.UUID) (func(), error) {
	l.mu.Lock()
	if _, busy := l.held[connectionID]; busy {
		l.mu.Unlock()
		return nil, apperrors.ErrSyncInProgress
	}
	l.held[connectionID] = struct{}{}
	l.mu.Unlock()

	local := func() {
		l.mu.Lock()
		delete(l.held, connectionID)
		l.mu.Unlock()
	}

	if l.distributed == nil {
		return local, nil
	}

	releaseRemote, acquired, err := l.distributed.TryLock(ctx, "sync-lock:"+connectionID.String(), l.ttl)
	if err != nil {
		local()
		return nil, err
	}
	if !acquired {
		local()
		return nil, apperrors.ErrSyncInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseRemote()
			local()
		})
	}, nil
}

// IsLocked reports whether this instance is syncing the connection
func (l *ConnectionLocker) IsLocked(connectionID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[connectionID]
	return busy
}
