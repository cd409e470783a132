package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
)

const maxErrorBody = 512

// Request describes one marketplace HTTP call
type Request struct {
	Op     string
	Class  OperationClass
	Cost   int
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	// Exactly one of Body (JSON), Form or Raw is sent
	Body        interface{}
	Form        url.Values
	Raw         []byte
	ContentType string
}

// Response is a fully read marketplace response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into out
func (r *Response) Decode(out interface{}) error {
	if len(r.Body) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "decode_response", err)
	}
	return nil
}

// Transport is the request dispatcher shared by the adapters of one marketplace
// account. Every attempt acquires a rate limit token before going on the wire,
// so retries are throttled like first attempts.
type Transport struct {
	marketplace models.MarketplaceType
	client      *http.Client
	limiter     *RateLimiter
	retrier     *Retrier
	breaker     *CircuitBreaker
	logger      *logrus.Entry
}

// NewTransport creates a dispatcher for one marketplace
func NewTransport(marketplace models.MarketplaceType, deps Deps) *Transport {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(nil, BucketConfig{BurstCapacity: 2, RestoreRatePerSecond: 2})
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("marketplace", string(marketplace))

	return &Transport{
		marketplace: marketplace,
		client:      client,
		limiter:     limiter,
		retrier:     NewRetrier(deps.RetryPolicy, logger),
		breaker:     NewCircuitBreaker(5, 30*time.Second),
		logger:      logger,
	}
}

// Breaker exposes the circuit breaker for health reporting
func (t *Transport) Breaker() *CircuitBreaker {
	return t.breaker
}

// Do executes the request through the limiter, the circuit breaker and the
// retry executor, returning an error for any non-2xx response.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	var payload []byte
	contentType := req.ContentType
	switch {
	case req.Raw != nil:
		payload = req.Raw
	case req.Form != nil:
		payload = []byte(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, req.Op, err)
		}
		if contentType == "" {
			contentType = "application/json"
		}
	}

	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var resp *Response
	err := t.retrier.Do(ctx, req.Op, func(ctx context.Context) error {
		r, err := t.attempt(ctx, req, fullURL, contentType, payload)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoJSON executes the request and decodes a successful body into out
func (t *Transport) DoJSON(ctx context.Context, req *Request, out interface{}) (*Response, error) {
	resp, err := t.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Decode(out); err != nil {
		return resp, err
	}
	return resp, nil
}

func (t *Transport) attempt(ctx context.Context, req *Request, fullURL, contentType string, payload []byte) (*Response, error) {
	if !t.breaker.Allow() {
		return nil, &apperrors.Error{
			Kind:        apperrors.KindTransientNetwork,
			Op:          req.Op,
			Marketplace: string(t.marketplace),
			Err:         errors.New("circuit breaker open"),
		}
	}

	class := req.Class
	if class == "" {
		class = ClassRead
	}
	if err := t.limiter.Acquire(ctx, BucketKey{Marketplace: t.marketplace, Class: class}, req.Cost); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, req.Op, err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		t.breaker.RecordFailure()
		return nil, t.classifyTransport(req.Op, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		t.breaker.RecordFailure()
		return nil, t.classifyTransport(req.Op, err)
	}

	if err := ClassifyStatus(t.marketplace, req.Op, httpResp.StatusCode, httpResp.Header, respBody); err != nil {
		if apperrors.IsRetryable(err) {
			t.breaker.RecordFailure()
		} else {
			t.breaker.RecordSuccess()
		}
		return nil, err
	}

	t.breaker.RecordSuccess()
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: respBody}, nil
}

func (t *Transport) classifyTransport(op string, err error) error {
	kind := apperrors.KindTransientNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = apperrors.KindTimeout
	}
	return &apperrors.Error{Kind: kind, Op: op, Marketplace: string(t.marketplace), Err: err}
}

// ClassifyStatus maps an HTTP status to the error taxonomy; 2xx yields nil
func ClassifyStatus(marketplace models.MarketplaceType, op string, status int, header http.Header, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var kind apperrors.Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = apperrors.KindAuthentication
	case status == http.StatusTooManyRequests:
		kind = apperrors.KindRateLimitExceeded
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = apperrors.KindTimeout
	case status >= 500:
		kind = apperrors.KindTransientNetwork
	case status == http.StatusNotFound:
		kind = apperrors.KindNotFound
	default:
		kind = apperrors.KindValidation
	}

	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}

	e := &apperrors.Error{
		Kind:        kind,
		Op:          op,
		Marketplace: string(marketplace),
		StatusCode:  status,
		Err:         fmt.Errorf("%s API error: %s", marketplace, msg),
	}
	if kind == apperrors.KindRateLimitExceeded {
		e.RetryAfter = ParseRetryAfter(header)
	}
	return e
}
