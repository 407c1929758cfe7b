package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// DefaultAPIEndpoint is the base URL for Cloudflare API v4.
const DefaultAPIEndpoint = "https://api.cloudflare.com/client/v4"

// apiError represents an error from the Cloudflare API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// resultInfo carries pagination details of list responses.
type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// apiResponse is the standard Cloudflare API response wrapper.
type apiResponse struct {
	Success    bool            `json:"success"`
	Errors     []apiError      `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info,omitempty"`
}

// zoneResult represents a zone from the Cloudflare API.
type zoneResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// dnsRecord represents a DNS record from the Cloudflare API.
type dnsRecord struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Priority *int   `json:"priority,omitempty"`
	Proxied  *bool  `json:"proxied,omitempty"`
}

// patchRecordRequest changes the TTL and content of a record.
type patchRecordRequest struct {
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// recordFilter narrows a listing on the server side.
type recordFilter struct {
	Name string
	Type string
}

// Client is a Cloudflare DNS API client.
type Client struct {
	apiEndpoint string
	token       string
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
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

// WithAPIEndpoint sets a custom API endpoint (useful for testing).
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.apiEndpoint = endpoint
		}
	}
}

// NewClient creates a new Cloudflare API client.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		apiEndpoint: DefaultAPIEndpoint,
		token:       token,
		httpClient:  httputil.DefaultClient(),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// doRequest performs an HTTP request to the Cloudflare API. A 404 is
// reported as provider.ErrNotFound.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	reqURL := c.apiEndpoint + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var apiResp apiResponse
	parseErr := json.Unmarshal(respBody, &apiResp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, provider.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: %w", method, path, provider.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if parseErr == nil && len(apiResp.Errors) > 0 {
			return nil, apiErrorToError(apiResp.Errors[0])
		}
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	case parseErr != nil:
		return nil, fmt.Errorf("parsing response JSON: %w", parseErr)
	case !apiResp.Success:
		if len(apiResp.Errors) > 0 {
			return nil, apiErrorToError(apiResp.Errors[0])
		}
		return nil, fmt.Errorf("API request failed with unknown error")
	}

	return &apiResp, nil
}

func apiErrorToError(e apiError) error {
	switch e.Code {
	// 81053: record with that host already exists; 81058: identical record already exists
	case 81053, 81058:
		return fmt.Errorf("%s: %w", e.Message, provider.ErrConflict)
	// 81044: record does not exist
	case 81044:
		return fmt.Errorf("%s: %w", e.Message, provider.ErrNotFound)
	}
	return fmt.Errorf("API error: %s (code: %d)", e.Message, e.Code)
}

// Ping checks connectivity to the Cloudflare API.
// Uses the /user/tokens/verify endpoint which is lightweight.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/user/tokens/verify", nil); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// LookupZoneID returns the ID of the zone named exactly name.
func (c *Client) LookupZoneID(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("name", name)

	resp, err := c.doRequest(ctx, http.MethodGet, "/zones?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("looking up zone %s: %w", name, err)
	}

	var zones []zoneResult
	if err := json.Unmarshal(resp.Result, &zones); err != nil {
		return "", fmt.Errorf("parsing zones response: %w", err)
	}
	if len(zones) == 0 {
		return "", fmt.Errorf("zone %s: %w", name, provider.ErrNotFound)
	}

	c.logger.Debug("found zone",
		slog.String("zone", name),
		slog.String("zone_id", zones[0].ID),
	)
	return zones[0].ID, nil
}

// ListRecords returns one page of records and the next page number, or 0
// when the listing is complete.
func (c *Client) ListRecords(ctx context.Context, zoneID string, page, perPage int, filter recordFilter) ([]dnsRecord, int, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	if filter.Name != "" {
		params.Set("name", filter.Name)
	}
	if filter.Type != "" {
		params.Set("type", filter.Type)
	}

	path := fmt.Sprintf("/zones/%s/dns_records?%s", zoneID, params.Encode())
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("listing records: %w", err)
	}

	var records []dnsRecord
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		return nil, 0, fmt.Errorf("parsing records response: %w", err)
	}

	next := 0
	if info := resp.ResultInfo; info != nil && info.Page < info.TotalPages {
		next = info.Page + 1
	}

	c.logger.Debug("listed records",
		slog.String("zone_id", zoneID),
		slog.Int("page", page),
		slog.Int("count", len(records)),
		slog.Int("next_page", next),
	)
	return records, next, nil
}

// CreateRecord creates a DNS record and returns its ID.
func (c *Client) CreateRecord(ctx context.Context, zoneID string, rec dnsRecord) (string, error) {
	path := fmt.Sprintf("/zones/%s/dns_records", zoneID)
	resp, err := c.doRequest(ctx, http.MethodPost, path, rec)
	if err != nil {
		return "", fmt.Errorf("creating record: %w", err)
	}

	var created dnsRecord
	if err := json.Unmarshal(resp.Result, &created); err != nil {
		return "", fmt.Errorf("parsing create response: %w", err)
	}

	c.logger.Info("created DNS record",
		slog.String("zone_id", zoneID),
		slog.String("record_id", created.ID),
		slog.String("type", rec.Type),
		slog.String("name", rec.Name),
		slog.Int("ttl", rec.TTL),
	)
	return created.ID, nil
}

// PatchRecord changes the TTL and content of a record.
func (c *Client) PatchRecord(ctx context.Context, zoneID, recordID string, ttl int, content string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, patchRecordRequest{Content: content, TTL: ttl}); err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	c.logger.Info("updated DNS record",
		slog.String("zone_id", zoneID),
		slog.String("record_id", recordID),
		slog.Int("ttl", ttl),
	)
	return nil
}

// DeleteRecord deletes a DNS record by ID.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	c.logger.Info("deleted DNS record",
		slog.String("zone_id", zoneID),
		slog.String("record_id", recordID),
	)
	return nil
}
