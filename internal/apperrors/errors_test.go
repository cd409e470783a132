package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("load: %w", ErrNotFound)))

	err := fmt.Errorf("fetch: %w", New(KindTimeout, "fetch_products", "deadline"))
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestIsWalksNestedKinds(t *testing.T) {
	root := &Error{Kind: KindAuthentication, Marketplace: "SHOPIFY", StatusCode: 401, Err: errors.New("invalid token")}
	wrapped := OperationFailed("fetch_products", 1, root)

	assert.True(t, Is(wrapped, KindOperationFailed))
	assert.True(t, Is(wrapped, KindAuthentication))
	assert.False(t, Is(wrapped, KindTimeout))
	assert.Equal(t, "SHOPIFY", wrapped.Marketplace)
	assert.Equal(t, 401, wrapped.StatusCode)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Kind: KindRateLimitExceeded}))
	assert.True(t, IsRetryable(&Error{Kind: KindTransientNetwork}))
	assert.True(t, IsRetryable(&Error{Kind: KindTimeout}))
	assert.False(t, IsRetryable(&Error{Kind: KindValidation}))
	assert.False(t, IsRetryable(&Error{Kind: KindAuthentication}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestOperationFailedMessage(t *testing.T) {
	err := OperationFailed("update_inventory", 4, &Error{Kind: KindTransientNetwork, StatusCode: 503, Err: errors.New("unavailable")})
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, 4, AttemptsOf(err))
}

func TestUnsupportedMarketplace(t *testing.T) {
	err := UnsupportedMarketplace("EBAY")
	assert.Equal(t, KindUnsupportedMarketplace, KindOf(err))
	assert.Contains(t, err.Error(), "EBAY")
}
