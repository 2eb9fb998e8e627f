// Package client provides a typed Go SDK for the audit ledger REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	requestIDHeader = "X-Request-ID"
	retryBaseDelay  = 250 * time.Millisecond
	retryMaxDelay   = 5 * time.Second
)

// Client is the top-level audit ledger API client.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	retries    int
	httpClient *http.Client

	Events  *EventService
	Blocks  *BlockService
	Chain   *ChainService
	Reports *ReportService
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetries retries GET requests up to n extra times when the server answers
// 429, 502, 503 or 504. Writes are never retried: a repeated append would
// record the event twice.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = max(n, 0) }
}

// New creates a client for the given base URL (e.g. "http://localhost:3040").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "auditledger-go",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	c.Events = &EventService{c: c}
	c.Blocks = &BlockService{c: c}
	c.Chain = &ChainService{c: c}
	c.Reports = &ReportService{c: c}
	return c
}

// Health returns the liveness check response.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/api/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready returns the readiness check response. A not-ready server answers 503
// with the same body, which is returned together with the APIError.
func (c *Client) Ready(ctx context.Context) (*ReadyResponse, error) {
	var resp ReadyResponse
	err := c.get(ctx, "/api/v1/ready", nil, &resp)
	return &resp, err
}

// do executes an HTTP request and decodes the JSON response. When the status
// is an error the body is still decoded into result if it parses, so callers
// of endpoints that return data alongside a failure status can use it.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.retries
	}

	for attempt := 1; ; attempt++ {
		status, header, respBody, err := c.roundTrip(ctx, method, path, payload)
		if err != nil {
			return err
		}

		if status < 400 {
			if result != nil && len(respBody) > 0 {
				if err := decodeBody(respBody, result); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		}

		if attempt < attempts && retryable(status) {
			if err := sleepCtx(ctx, retryDelay(attempt, header)); err != nil {
				return err
			}
			continue
		}

		if result != nil {
			_ = json.Unmarshal(respBody, result)
		}
		apiErr := parseAPIError(status, respBody)
		if apiErr.RequestID == "" {
			apiErr.RequestID = header.Get(requestIDHeader)
		}
		return apiErr
	}
}

// roundTrip sends one request and reads the whole response body.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (int, http.Header, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, resp.Header, respBody, nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryDelay honours a Retry-After header in seconds, otherwise backs off
// exponentially from retryBaseDelay.
func retryDelay(attempt int, header http.Header) time.Duration {
	if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs >= 0 {
		return min(time.Duration(secs)*time.Second, retryMaxDelay)
	}
	return min(retryBaseDelay<<(attempt-1), retryMaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// get is a convenience wrapper for GET requests with query parameters.
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post is a convenience wrapper for POST requests.
func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// decodeBody keeps numbers as json.Number so event details survive exactly.
func decodeBody(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
