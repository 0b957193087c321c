package aptos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market-feed/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrNotFound is returned when the node answers 404 for an account,
// resource or event handle.
var ErrNotFound = errors.New("aptos: not found")

// APIError is a non-retryable error response from the node.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	ErrorCode  string `json:"error_code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aptos api error %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
}

// HTTPClient implements Client over the node REST API.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a client for the node at baseURL
// (e.g. https://fullnode.mainnet.aptoslabs.com).
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs a request with retries and exponential backoff. op labels the
// latency metric.
// 429, 5xx and transport errors are retried; other 4xx are returned at once.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body, result any) error {
	start := time.Now()
	defer func() {
		observability.RecordRequestLatency(op, time.Since(start).Seconds())
	}()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		case resp.StatusCode != http.StatusOK:
			apiErr := &APIError{StatusCode: resp.StatusCode}
			_ = json.Unmarshal(respBody, apiErr)
			if apiErr.Message == "" {
				apiErr.Message = string(respBody)
			}
			return apiErr
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// AccountResources lists all resources stored under addr.
func (c *HTTPClient) AccountResources(ctx context.Context, addr string) ([]Resource, error) {
	var out []Resource
	path := fmt.Sprintf("/v1/accounts/%s/resources", addr)
	if err := c.do(ctx, "account_resources", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccountResource reads one resource of the given struct tag under addr.
func (c *HTTPClient) AccountResource(ctx context.Context, addr, resourceType string) (*Resource, error) {
	var out Resource
	path := fmt.Sprintf("/v1/accounts/%s/resource/%s", addr, url.PathEscape(resourceType))
	if err := c.do(ctx, "account_resource", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventsByHandle pages the event stream stored in field of the handle
// struct under addr, starting at sequence number start.
func (c *HTTPClient) EventsByHandle(ctx context.Context, addr, handle, field string, start uint64, limit int) ([]Event, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatUint(start, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var out []Event
	path := fmt.Sprintf("/v1/accounts/%s/events/%s/%s", addr, url.PathEscape(handle), field)
	if err := c.do(ctx, "events_by_handle", http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// View calls a view function and returns its raw return values.
func (c *HTTPClient) View(ctx context.Context, req ViewRequest) ([]json.RawMessage, error) {
	if req.TypeArguments == nil {
		req.TypeArguments = []string{}
	}
	if req.Arguments == nil {
		req.Arguments = []any{}
	}

	var out []json.RawMessage
	if err := c.do(ctx, "view", http.MethodPost, "/v1/view", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Client = (*HTTPClient)(nil)
