package clients

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/apperrors"
)

// RetryPolicy defines retry behavior around one remote call
type RetryPolicy struct {
	InitialDelay   time.Duration // base delay, also the jitter ceiling
	MaxDelay       time.Duration // cap on any single delay
	MaxRetries     int           // retries after the first attempt
	AttemptTimeout time.Duration // per-attempt deadline, 0 disables
}

// DefaultRetryPolicy returns production retry settings
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay:   1 * time.Second,
		MaxDelay:       60 * time.Second,
		MaxRetries:     5,
		AttemptTimeout: 30 * time.Second,
	}
}

// Retrier runs a call with bounded exponential backoff and jitter.
// Only RateLimitExceeded, TransientNetworkError and TimeoutError are retried.
type Retrier struct {
	policy RetryPolicy
	logger *logrus.Entry

	mu     sync.Mutex
	rnd    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// NewRetrier creates a retrier for the given policy
func NewRetrier(policy RetryPolicy, logger *logrus.Entry) *Retrier {
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = DefaultRetryPolicy().InitialDelay
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	r := &Retrier{
		policy: policy,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
	r.jitter = r.randomJitter
	return r
}

// Policy returns the retrier's policy
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Backoff returns min(MaxDelay, InitialDelay * 2^retry) for a zero-based retry index
func (r *Retrier) Backoff(retry int) time.Duration {
	d := r.policy.InitialDelay
	for i := 0; i < retry; i++ {
		if d >= r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
		d *= 2
	}
	if d > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return d
}

// Delay returns the wait after the given 1-based attempt failed: the backoff
// for that retry plus jitter in [0, InitialDelay], bounded by
// min(MaxDelay, InitialDelay * 2^attempt).
func (r *Retrier) Delay(attempt int) time.Duration {
	d := r.Backoff(attempt-1) + r.jitter(r.policy.InitialDelay)
	if ceiling := r.Backoff(attempt); d > ceiling {
		d = ceiling
	}
	return d
}

// Do runs fn until it succeeds, fails permanently or exhausts MaxRetries.
// Attempts never exceed MaxRetries+1. Exhaustion yields OperationFailed
// carrying the attempt count and the last error.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := r.attempt(ctx, op, fn)
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.Wrap(apperrors.KindTimeout, op, ctxErr)
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
		if attempt > r.policy.MaxRetries {
			return apperrors.OperationFailed(op, attempt, err)
		}

		delay := r.Delay(attempt)
		if hint := apperrors.RetryAfterOf(err); hint > delay {
			delay = hint
			if delay > r.policy.MaxDelay {
				delay = r.policy.MaxDelay
			}
		}

		r.logger.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"delay":     delay.String(),
			"kind":      apperrors.KindOf(err),
		}).WithError(err).Warn("Retrying marketplace call")

		if err := r.sleep(ctx, delay); err != nil {
			return apperrors.Wrap(apperrors.KindTimeout, op, err)
		}
	}
}

func (r *Retrier) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attemptCtx := ctx
	if r.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
		defer cancel()
	}

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}
	if apperrors.KindOf(err) == apperrors.KindUnknown && errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout, op, err)
	}
	return err
}

func (r *Retrier) randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.rnd.Int63n(int64(max) + 1))
}

// ParseRetryAfter extracts the Retry-After duration from response headers
func ParseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// CircuitBreaker fails fast after repeated transient failures
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     int
	successes    int
	state        CircuitState
	lastFailure  time.Time
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  1,
		state:        CircuitClosed,
	}
}

// Allow checks if a request should be allowed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.successes = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return cb.successes < cb.halfOpenMax
	}
	return false
}

// RecordSuccess records a successful operation
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.state = CircuitClosed
		}
	}
	cb.failures = 0
}

// RecordFailure records a failed operation
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
