package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the contract the fetch/upsert engine consumes: a paged, idempotent
// query endpoint per entity type with stable ascending-id ordering, plus a
// single-record lookup for webhook-driven syncs.
type Client interface {
	Find(ctx context.Context, entityType string, filter FindFilter) (*FindResult, error)
	FindByID(ctx context.Context, entityType, id string) (json.RawMessage, error)
}

// HTTPClient talks to one configured source instance over its JSON API.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPClient creates a client for one source instance endpoint.
func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Find requests one page of records for an entity type. The upstream orders
// results by ascending id; the same query re-issued returns the same page.
func (c *HTTPClient) Find(ctx context.Context, entityType string, filter FindFilter) (*FindResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(filter.Page))
	q.Set("per_page", strconv.Itoa(filter.PerPage))
	q.Set("sort", "id")
	if filter.UpdatedAfter != "" {
		q.Set("updated_after", filter.UpdatedAfter)
	}

	reqURL := fmt.Sprintf("%s/api/%ss?%s", c.endpoint, entityType, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build find request for %s: %w", entityType, err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream find request for %s failed: %w", entityType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream find for %s returned status %d", entityType, resp.StatusCode)
	}

	var result FindResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode find response for %s: %w", entityType, err)
	}
	return &result, nil
}

// FindByID fetches exactly one record. A 404 is reported as ErrNotFound so the
// webhook path can translate an upstream delete into a local tombstone.
func (c *HTTPClient) FindByID(ctx context.Context, entityType, id string) (json.RawMessage, error) {
	reqURL := fmt.Sprintf("%s/api/%ss/%s", c.endpoint, entityType, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request for %s %s: %w", entityType, id, err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream lookup for %s %s failed: %w", entityType, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream lookup for %s %s returned status %d", entityType, id, resp.StatusCode)
	}

	var record json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response for %s %s: %w", entityType, id, err)
	}
	return record, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("ApiKey", c.apiKey)
	}
}

// ErrNotFound signals that the upstream no longer has the requested record.
var ErrNotFound = fmt.Errorf("upstream record not found")
