package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// Webhook API request/response types.
// These define the contract between zoneweaver and webhook endpoints.

// RecordRequest is the request body for create operations.
type RecordRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Qualifier string `json:"qualifier,omitempty"`
	TTL       int    `json:"ttl"`
	Priority  *int   `json:"priority,omitempty"`
	Data      string `json:"data"`
}

// UpdateRequest is the request body for update operations.
type UpdateRequest struct {
	TTL  int    `json:"ttl"`
	Data string `json:"data"`
}

// RecordResponse represents a single DNS record returned by the webhook.
type RecordResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Qualifier string `json:"qualifier,omitempty"`
	TTL       int    `json:"ttl"`
	Priority  *int   `json:"priority,omitempty"`
	Data      string `json:"data"`
}

// ListResponse is one page of a listing. An empty NextCursor ends it.
type ListResponse struct {
	Records    []RecordResponse `json:"records"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// WriteResponse acknowledges a write. Job is set when the endpoint
// accepted the write with 202 and completes it later.
type WriteResponse struct {
	ID  string `json:"id,omitempty"`
	Job string `json:"job,omitempty"`
}

// JobResponse is the state of an asynchronous write.
type JobResponse struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the expected error response format from webhooks.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// ListFilter narrows a listing to one name and type.
type ListFilter struct {
	Name string
	Type string
}

// Client is a webhook HTTP client.
type Client struct {
	baseURL    string
	authHeader string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new webhook client.
func NewClient(baseURL string, timeout time.Duration, authHeader, authToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		authHeader: authHeader,
		authToken:  authToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// doRequest performs an HTTP request and decodes a JSON response into out
// when out is non-nil. Retries of transient failures are the transport's job.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) (int, error) {
	reqURL := c.baseURL + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Add custom auth header if configured
	if c.authHeader != "" && c.authToken != "" {
		req.Header.Set(c.authHeader, c.authToken)
	}

	c.logger.Debug("making webhook request",
		slog.String("method", method),
		slog.String("url", reqURL),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}

	if err := statusError(resp.StatusCode, respBody); err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("parsing response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// statusError maps a non-2xx response to an error.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	detail := fmt.Sprintf("unexpected status %d", status)
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		detail = errResp.Error
		if errResp.Message != "" {
			detail += ": " + errResp.Message
		}
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", detail, provider.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", detail, provider.ErrConflict)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", detail, provider.ErrUnauthorized)
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", detail, provider.ErrProviderUnavailable)
	}
	return errors.New(detail)
}

// Ping checks connectivity to the webhook endpoint.
// Sends GET /ping and expects 200 OK.
func (c *Client) Ping(ctx context.Context) error {
	status, err := c.doRequest(ctx, http.MethodGet, "/ping", nil, nil)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("ping failed: unexpected status %d", status)
	}
	return nil
}

func recordsPath(zone string) string {
	return "/zones/" + url.PathEscape(zone) + "/records"
}

// List retrieves one page of records in zone.
// Sends GET /zones/{zone}/records?cursor=...&name=...&type=...
func (c *Client) List(ctx context.Context, zone, cursor string, filter ListFilter) (*ListResponse, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if filter.Name != "" {
		params.Set("name", filter.Name)
	}
	if filter.Type != "" {
		params.Set("type", filter.Type)
	}
	path := recordsPath(zone)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page ListResponse
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}

	c.logger.Debug("listed records from webhook",
		slog.String("zone", zone),
		slog.Int("count", len(page.Records)),
		slog.Bool("more", page.NextCursor != ""),
	)
	return &page, nil
}

// Create sends a request to create a DNS record.
// Sends POST /zones/{zone}/records with a RecordRequest body.
func (c *Client) Create(ctx context.Context, zone string, rec RecordRequest) (*WriteResponse, error) {
	var resp WriteResponse
	if _, err := c.doRequest(ctx, http.MethodPost, recordsPath(zone), rec, &resp); err != nil {
		return nil, fmt.Errorf("create failed: %w", err)
	}

	c.logger.Info("created record via webhook",
		slog.String("zone", zone),
		slog.String("name", rec.Name),
		slog.String("type", rec.Type),
		slog.String("data", rec.Data),
		slog.Int("ttl", rec.TTL),
		slog.String("job", resp.Job),
	)
	return &resp, nil
}

// Update changes the TTL and data of a record.
// Sends PATCH /zones/{zone}/records/{id} with an UpdateRequest body.
func (c *Client) Update(ctx context.Context, zone, id string, ttl int, data string) (*WriteResponse, error) {
	var resp WriteResponse
	path := recordsPath(zone) + "/" + url.PathEscape(id)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, UpdateRequest{TTL: ttl, Data: data}, &resp); err != nil {
		return nil, fmt.Errorf("update failed: %w", err)
	}

	c.logger.Info("updated record via webhook",
		slog.String("zone", zone),
		slog.String("id", id),
		slog.Int("ttl", ttl),
		slog.String("job", resp.Job),
	)
	return &resp, nil
}

// Delete removes a record.
// Sends DELETE /zones/{zone}/records/{id}.
func (c *Client) Delete(ctx context.Context, zone, id string) (*WriteResponse, error) {
	var resp WriteResponse
	path := recordsPath(zone) + "/" + url.PathEscape(id)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("delete failed: %w", err)
	}

	c.logger.Info("deleted record via webhook",
		slog.String("zone", zone),
		slog.String("id", id),
		slog.String("job", resp.Job),
	)
	return &resp, nil
}

// Job fetches the state of an asynchronous write.
// Sends GET /jobs/{id}.
func (c *Client) Job(ctx context.Context, id string) (*JobResponse, error) {
	var resp JobResponse
	if _, err := c.doRequest(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("job status failed: %w", err)
	}
	return &resp, nil
}
