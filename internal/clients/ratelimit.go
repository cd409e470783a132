package clients

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
)

// OperationClass partitions a marketplace's request budget
type OperationClass string

const (
	ClassRead      OperationClass = "read"
	ClassWrite     OperationClass = "write"
	ClassInventory OperationClass = "inventory"
	ClassAuth      OperationClass = "auth"
)

// BucketKey identifies one token bucket
type BucketKey struct {
	Marketplace models.MarketplaceType
	Class       OperationClass
}

// BucketConfig sizes a token bucket
type BucketConfig struct {
	BurstCapacity        int
	RestoreRatePerSecond float64
}

// RateLimiter holds one token bucket per (marketplace, operation class).
// Buckets are independent so a burst on one class cannot starve another.
// There is no queue limit here; the retry budget bounds how long callers wait.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[BucketKey]*rate.Limiter
	configs  map[BucketKey]BucketConfig
	fallback BucketConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter. Keys without an explicit config use fallback.
func NewRateLimiter(configs map[BucketKey]BucketConfig, fallback BucketConfig) *RateLimiter {
	l := &RateLimiter{
		buckets:  make(map[BucketKey]*rate.Limiter),
		configs:  make(map[BucketKey]BucketConfig),
		fallback: normalizeBucket(fallback),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for key, cfg := range configs {
		l.configs[key] = normalizeBucket(cfg)
	}
	return l
}

// Configure replaces the config of a bucket; an existing bucket is resized in place
func (l *RateLimiter) Configure(key BucketKey, cfg BucketConfig) {
	cfg = normalizeBucket(cfg)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs[key] = cfg
	if lim, ok := l.buckets[key]; ok {
		now := l.now()
		lim.SetLimitAt(now, rate.Limit(cfg.RestoreRatePerSecond))
		lim.SetBurstAt(now, cfg.BurstCapacity)
	}
}

// Config returns the effective config of a bucket
func (l *RateLimiter) Config(key BucketKey) BucketConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg, ok := l.configs[key]; ok {
		return cfg
	}
	return l.fallback
}

// Acquire takes cost tokens, suspending the caller for
// (cost - available) / restoreRate when the bucket is short.
func (l *RateLimiter) Acquire(ctx context.Context, key BucketKey, cost int) error {
	const op = "ratelimit.acquire"

	if cost <= 0 {
		cost = 1
	}

	lim := l.bucket(key)
	if cost > lim.Burst() {
		return apperrors.New(apperrors.KindValidation, op, "cost %d exceeds burst capacity %d for %s/%s", cost, lim.Burst(), key.Marketplace, key.Class)
	}

	now := l.now()
	reservation := lim.ReserveN(now, cost)
	if !reservation.OK() {
		return apperrors.New(apperrors.KindValidation, op, "cannot reserve %d tokens for %s/%s", cost, key.Marketplace, key.Class)
	}

	wait := reservation.DelayFrom(now)
	if wait <= 0 {
		return nil
	}
	if err := l.sleep(ctx, wait); err != nil {
		reservation.CancelAt(l.now())
		return apperrors.Wrap(apperrors.KindTimeout, op, err)
	}
	return nil
}

// Available reports the tokens currently in a bucket
func (l *RateLimiter) Available(key BucketKey) float64 {
	return l.bucket(key).TokensAt(l.now())
}

func (l *RateLimiter) bucket(key BucketKey) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.buckets[key]; ok {
		return lim
	}

	cfg, ok := l.configs[key]
	if !ok {
		cfg = l.fallback
	}
	lim := rate.NewLimiter(rate.Limit(cfg.RestoreRatePerSecond), cfg.BurstCapacity)
	// Buckets start full
	lim.SetBurstAt(l.now(), cfg.BurstCapacity)
	l.buckets[key] = lim
	return lim
}

func normalizeBucket(cfg BucketConfig) BucketConfig {
	if cfg.BurstCapacity <= 0 {
		cfg.BurstCapacity = 1
	}
	if cfg.RestoreRatePerSecond <= 0 {
		cfg.RestoreRatePerSecond = 1
	}
	return cfg
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
