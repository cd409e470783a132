// Package credits charges tenants for metered marketplace operations.
package credits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"marketplace-sync-service/internal/apperrors"
)

// HTTPClient deducts credits through the credits service
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the credits service at baseURL
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
	}
}

type deductRequest struct {
	TenantID string `json:"tenantId"`
	Amount   int    `json:"amount"`
	Reason   string `json:"reason"`
}

// Deduct charges amount credits. A 402 answer is reported as
// InsufficientCredits.
func (c *HTTPClient) Deduct(ctx context.Context, tenantID string, amount int, reason string) error {
	const op = "deduct_credits"

	body, err := json.Marshal(deductRequest{TenantID: tenantID, Amount: amount, Reason: reason})
	if err != nil {
		return fmt.Errorf("failed to marshal credit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/credits/deduct", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build credit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.KindTimeout, op, err)
		}
		return apperrors.Wrap(apperrors.KindTransientNetwork, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	e := apperrors.New(kindForStatus(resp.StatusCode), op, "credits service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	e.StatusCode = resp.StatusCode
	return e
}

func kindForStatus(status int) apperrors.Kind {
	switch {
	case status == http.StatusPaymentRequired:
		return apperrors.KindInsufficientCredits
	case status == http.StatusTooManyRequests:
		return apperrors.KindRateLimitExceeded
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.KindAuthentication
	case status >= 500:
		return apperrors.KindTransientNetwork
	default:
		return apperrors.KindValidation
	}
}

// Unlimited never refuses a deduction. It is used when no credits service
// is configured.
type Unlimited struct{}

func (Unlimited) Deduct(ctx context.Context, tenantID string, amount int, reason string) error {
	return nil
}
