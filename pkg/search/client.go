package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// HTTPClient talks to a SERP-sifting search service over its JSON API. The
// service owns result-page parsing and URL canonicalization; this client
// only speaks the fixed row contract.
type HTTPClient struct {
	baseURL    string
	country    string
	httpClient *http.Client
}

// HTTPClientOptions configures the search client.
type HTTPClientOptions struct {
	Country string
	Timeout time.Duration
}

// searchRequest is the wire request for one query.
type searchRequest struct {
	Query       string   `json:"q"`
	When        string   `json:"when"`
	Country     string   `json:"country,omitempty"`
	Lang        string   `json:"lang,omitempty"`
	SiteFilters []string `json:"allow_domains,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// searchResponse is the wire response.
type searchResponse struct {
	Results []domain.SearchHit `json:"results"`
}

// NewHTTPClient creates a client for the search service at baseURL.
func NewHTTPClient(baseURL string, opts *HTTPClientOptions) *HTTPClient {
	if opts == nil {
		opts = &HTTPClientOptions{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.Country == "" {
		opts.Country = "en-US"
	}

	return &HTTPClient{
		baseURL: baseURL,
		country: opts.Country,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Search implements domain.SearchClient. An empty result list is a valid
// outcome; network failures and non-2xx statuses surface as TransportError.
func (c *HTTPClient) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	req := searchRequest{
		Query:       query,
		When:        opts.Freshness,
		Country:     c.country,
		Lang:        opts.Lang,
		SiteFilters: opts.SiteFilters,
		Limit:       opts.Limit,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/search", c.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewTransportError("search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, domain.NewTransportError("search",
			fmt.Errorf("search service returned status %d: %s", resp.StatusCode, string(data)))
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, domain.NewTransportError("search",
			fmt.Errorf("failed to decode search response: %w", err))
	}

	return searchResp.Results, nil
}

// CheckHealth verifies the search service is reachable.
func (c *HTTPClient) CheckHealth(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/healthz", c.baseURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("search service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
