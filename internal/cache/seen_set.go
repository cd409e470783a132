package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "webhook:seen:"

// RedisSeenSet remembers webhook idempotency keys in redis
type RedisSeenSet struct {
	client *redis.Client
	prefix string
}

// NewRedisSeenSet creates a seen-set on an existing client
func NewRedisSeenSet(client *redis.Client) *RedisSeenSet {
	return &RedisSeenSet{client: client, prefix: seenKeyPrefix}
}

// MarkIfNew atomically records key with SET NX EX. It returns false when
// key was already present.
func (s *RedisSeenSet) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook key: %w", err)
	}
	return ok, nil
}

// Forget removes key
func (s *RedisSeenSet) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// MemorySeenSet is the single-instance seen-set
type MemorySeenSet struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemorySeenSet creates an empty in-memory seen-set
func NewMemorySeenSet() *MemorySeenSet {
	return &MemorySeenSet{expires: make(map[string]time.Time), now: time.Now}
}

func (s *MemorySeenSet) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if _, ok := s.expires[key]; ok {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

func (s *MemorySeenSet) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.expires, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live keys
func (s *MemorySeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(s.now())
	return len(s.expires)
}

func (s *MemorySeenSet) sweep(now time.Time) {
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
		}
	}
}
