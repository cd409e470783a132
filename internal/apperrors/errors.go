// Package apperrors defines the error taxonomy shared by adapters, the
// retry executor, ingestion and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error independently of the marketplace that produced it.
type Kind string

const (
	KindUnknown                 Kind = "UNKNOWN"
	KindAuthentication          Kind = "AUTHENTICATION_ERROR"
	KindRateLimitExceeded       Kind = "RATE_LIMIT_EXCEEDED"
	KindTransientNetwork        Kind = "TRANSIENT_NETWORK_ERROR"
	KindTimeout                 Kind = "TIMEOUT_ERROR"
	KindValidation              Kind = "VALIDATION_ERROR"
	KindConflictDetected        Kind = "CONFLICT_DETECTED"
	KindUnsupportedMarketplace  Kind = "UNSUPPORTED_MARKETPLACE"
	KindCredentialNotFound      Kind = "CREDENTIAL_NOT_FOUND"
	KindCredentialDecryptFailed Kind = "CREDENTIAL_DECRYPT_FAILED"
	KindOperationFailed         Kind = "OPERATION_FAILED"
	KindInsufficientCredits     Kind = "INSUFFICIENT_CREDITS"
	KindNotFound                Kind = "NOT_FOUND"
)

// Sentinel errors used across packages.
var (
	ErrNotFound                  = errors.New("record not found")
	ErrConcurrentModification    = errors.New("record was modified concurrently")
	ErrSyncInProgress            = errors.New("sync already in progress for connection")
	ErrNoUpdateFields            = errors.New("at least one update field is required")
	ErrInvalidConflictTransition = errors.New("conflict is not pending")
	ErrConnectionExists          = errors.New("connection already exists for this marketplace")
	ErrDuplicateEvent            = errors.New("webhook event already received")
)

// Error is the structured error carried through the sync engine.
type Error struct {
	Kind        Kind
	Op          string
	Marketplace string
	StatusCode  int
	RetryAfter  time.Duration
	Attempts    int
	Err         error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Marketplace != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Marketplace)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Kind == KindOperationFailed && e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind with a formatted message as root cause.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// OperationFailed wraps the last error after the retry budget was spent.
func OperationFailed(op string, attempts int, err error) *Error {
	e := &Error{Kind: KindOperationFailed, Op: op, Attempts: attempts, Err: err}
	var inner *Error
	if errors.As(err, &inner) {
		e.Marketplace = inner.Marketplace
		e.StatusCode = inner.StatusCode
	}
	return e
}

// UnsupportedMarketplace reports a marketplace with no registered adapter.
func UnsupportedMarketplace(marketplace string) *Error {
	return &Error{
		Kind:        KindUnsupportedMarketplace,
		Marketplace: marketplace,
		Err:         fmt.Errorf("unsupported marketplace type: %s", marketplace),
	}
}

// KindOf returns the outermost Kind in the chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindUnknown
}

// Is reports whether any error in the chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRetryable reports whether the retry executor may try the call again.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimitExceeded, KindTransientNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the server-provided retry hint, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// AttemptsOf returns the attempt count recorded on an OperationFailed error.
func AttemptsOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Attempts
	}
	return 0
}
