package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a lease shared by every service instance
type RedisLock struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisLock creates a lock on an existing client
func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, timeout: 5 * time.Second}
}

// TryLock takes key for ttl without waiting. The lease expires on its own
// if the holder dies.
func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// MemoryLock is the single-instance lease
type MemoryLock struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

// NewMemoryLock creates an in-memory lock
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{leases: make(map[string]lease), now: time.Now}
}

func (l *MemoryLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, false, nil
	}

	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.leases[key]; ok && held.token == token {
			delete(l.leases, key)
		}
	}, true, nil
}
