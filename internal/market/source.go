// Package market provides read-only access to marketplace data for agent
// workers. The marketplace is a black box returning structured records; any
// failure here is handled by the caller like a failed agent task.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/optilist/optilist/internal/config"
)

// Listing is one comparable listing returned by the marketplace.
type Listing struct {
	// Title is the listing title.
	Title string `json:"title"`
	// Price is the asking price in dollars.
	Price float64 `json:"price"`
	// Sold is true if the listing has sold.
	Sold bool `json:"sold"`
	// Condition is the seller-declared condition.
	Condition string `json:"condition,omitempty"`
}

// CategoryStats summarizes demand signals for a category.
type CategoryStats struct {
	// Category is the queried category name.
	Category string `json:"category"`
	// ActiveListings is the number of live listings.
	ActiveListings int `json:"active_listings"`
	// SoldLastMonth is the number of sales in the trailing month.
	SoldLastMonth int `json:"sold_last_month"`
	// MedianPrice is the median sale price in dollars.
	MedianPrice float64 `json:"median_price"`
}

// DataSource is the read-only marketplace boundary queried by agent workers.
type DataSource interface {
	// Comparables returns listings comparable to the given query.
	Comparables(ctx context.Context, query string) ([]Listing, error)
	// CategoryStats returns demand signals for a category.
	CategoryStats(ctx context.Context, category string) (*CategoryStats, error)
}

// HTTPSource queries a marketplace HTTP endpoint.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a marketplace client for the configured endpoint.
func NewHTTPSource(cfg config.MarketplaceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Comparables returns listings comparable to the given query.
func (s *HTTPSource) Comparables(ctx context.Context, query string) ([]Listing, error) {
	var listings []Listing
	if err := s.getJSON(ctx, "/v1/comparables", url.Values{"q": {query}}, &listings); err != nil {
		return nil, fmt.Errorf("marketplace comparables: %w", err)
	}
	return listings, nil
}

// CategoryStats returns demand signals for a category.
func (s *HTTPSource) CategoryStats(ctx context.Context, category string) (*CategoryStats, error) {
	var stats CategoryStats
	if err := s.getJSON(ctx, "/v1/category-stats", url.Values{"category": {category}}, &stats); err != nil {
		return nil, fmt.Errorf("marketplace category stats: %w", err)
	}
	return &stats, nil
}

// getJSON performs a GET request and decodes the JSON response into out.
func (s *HTTPSource) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := s.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
