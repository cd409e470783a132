package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrMissingTenant is returned by a resolver when the request names no tenant
var ErrMissingTenant = errors.New("tenant ID is required")

// TenantContext identifies the caller of a request
type TenantContext struct {
	TenantID string
	UserID   string
}

// TenantResolver extracts the caller from a request
type TenantResolver interface {
	Resolve(r *http.Request) (TenantContext, error)
}

// HeaderResolver trusts the X-Tenant-ID and X-User-ID headers set by the
// gateway in front of the service
type HeaderResolver struct{}

// Resolve implements TenantResolver
func (HeaderResolver) Resolve(r *http.Request) (TenantContext, error) {
	tc := TenantContext{
		TenantID: strings.TrimSpace(r.Header.Get("X-Tenant-ID")),
		UserID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
	}
	if tc.TenantID == "" {
		return tc, ErrMissingTenant
	}
	return tc, nil
}

type tenantContextKey struct{}

// WithTenantContext returns a new context carrying the caller
func WithTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// TenantFromContext extracts the caller from context
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(TenantContext)
	return tc, ok
}

// Tenant resolves the caller and stores it on the gin and request contexts.
// Requests without a tenant pass through; RequireTenantID rejects them.
func Tenant(resolver TenantResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, err := resolver.Resolve(c.Request)
		if err == nil {
			c.Set("tenantId", tc.TenantID)
			if tc.UserID != "" {
				c.Set("userId", tc.UserID)
			}
			c.Request = c.Request.WithContext(WithTenantContext(c.Request.Context(), tc))
		}
		c.Next()
	}
}

// RequireTenantID ensures a tenant ID is present
func RequireTenantID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetTenantID(c) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrMissingTenant.Error()})
			return
		}
		c.Next()
	}
}

// GetTenantID retrieves the tenant ID from the context
func GetTenantID(c *gin.Context) string {
	return c.GetString("tenantId")
}

// GetUserID retrieves the user ID from the context
func GetUserID(c *gin.Context) string {
	return c.GetString("userId")
}
