// Package barcode resolves UPC codes to product descriptions through an external
// product database. Concurrent lookups of the same code share one upstream request.
package barcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 512
)

var (
	ErrMissingUPC   = errors.New("UPC is required")
	ErrNotFound     = errors.New("barcode not found in database")
	ErrUnauthorized = errors.New("barcode API authentication failed")
	ErrUpstream     = errors.New("barcode API returned an unexpected error")
	ErrUnavailable  = errors.New("barcode lookup is not configured")
)

// Product is the subset of product data surfaced to inventory views.
type Product struct {
	UPC         string `json:"upc"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
}

type upstreamProduct struct {
	UPC         string `json:"upc"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
}

// Config configures the lookup client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client queries the product database.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	group      singleflight.Group
}

// NewClient constructs a Client. An empty BaseURL yields a client whose lookups fail with ErrUnavailable.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Lookup returns the product registered for upc.
func (c *Client) Lookup(ctx context.Context, upc string) (Product, error) {
	upc = strings.TrimSpace(upc)
	if upc == "" {
		return Product{}, ErrMissingUPC
	}
	if c.baseURL == "" {
		return Product{}, ErrUnavailable
	}
	result, err, shared := c.group.Do(upc, func() (interface{}, error) {
		return c.fetch(ctx, upc)
	})
	if err != nil {
		return Product{}, err
	}
	if shared {
		c.logger.Debug("barcode lookup shared", zap.String("upc", upc))
	}
	return result.(Product), nil
}

func (c *Client) fetch(ctx context.Context, upc string) (Product, error) {
	endpoint := c.baseURL + "/products/" + url.PathEscape(upc)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Product{}, fmt.Errorf("barcode: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("barcode lookup failed", zap.String("upc", upc), zap.Error(err))
		return Product{}, fmt.Errorf("barcode: network error: %w", err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return Product{}, ErrNotFound
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		c.logger.Error("barcode lookup rejected credentials", zap.Int("status", response.StatusCode))
		return Product{}, ErrUnauthorized
	case response.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))
		c.logger.Warn("barcode lookup unexpected status",
			zap.Int("status", response.StatusCode),
			zap.String("body", string(body)),
		)
		return Product{}, fmt.Errorf("%w (status %d)", ErrUpstream, response.StatusCode)
	}

	var payload upstreamProduct
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return Product{}, fmt.Errorf("barcode: decode response: %w", err)
	}
	product := Product{
		UPC:         payload.UPC,
		Description: payload.Name,
		Brand:       payload.Brand,
		Category:    payload.Category,
	}
	if product.UPC == "" {
		product.UPC = upc
	}
	if product.Description == "" {
		product.Description = payload.Description
	}
	return product, nil
}
