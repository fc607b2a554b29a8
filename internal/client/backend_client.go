package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"flipit-overrides-api/internal/models"
)

// maxErrorBody bounds how much of an error response is kept for messages
const maxErrorBody = 4 * 1024

// Credentials carries the seller's bearer token. It is passed into every call
// explicitly so no client method depends on ambient token storage.
type Credentials struct {
	Token string
}

// AttributeOptions tunes an attribute schema lookup
type AttributeOptions struct {
	// MarketplaceID selects the eBay site; empty uses the client default
	MarketplaceID string
}

// BackendConfig configures a BackendClient
type BackendConfig struct {
	BaseURL                string
	Timeout                time.Duration
	RequestsPerSecond      float64
	Burst                  int
	DefaultEbayMarketplace string
}

// BackendClient provides methods to interact with the FlipIt backend API
type BackendClient struct {
	baseURL         string
	httpClient      *http.Client
	limiter         *rate.Limiter
	ebayMarketplace string
}

// NewBackendClient creates a new backend client
func NewBackendClient(cfg BackendConfig) *BackendClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	marketplace := cfg.DefaultEbayMarketplace
	if marketplace == "" {
		marketplace = "EBAY_PL"
	}

	return &BackendClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:         rate.NewLimiter(limit, burst),
		ebayMarketplace: marketplace,
	}
}

// GetAttributes resolves a platform+category pair to its attribute schema.
// Platforms without a dynamic schema return an empty schema without a
// network call. An empty schema is a valid result, distinct from an error.
func (c *BackendClient) GetAttributes(ctx context.Context, creds Credentials, platform models.Platform, categoryID string, opts AttributeOptions) (models.AttributeFieldSchema, error) {
	if !platform.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return nil, ErrEmptyCategory
	}
	if !platform.HasAttributeSchema() {
		slog.Debug("Platform has no attribute schema, skipping lookup", "platform", platform)
		return models.AttributeFieldSchema{}, nil
	}

	query := url.Values{}
	query.Set("category_id", categoryID)
	if platform == models.PlatformEbay {
		marketplace := opts.MarketplaceID
		if marketplace == "" {
			marketplace = c.ebayMarketplace
		}
		query.Set("marketplace_id", marketplace)
	}
	endpoint := fmt.Sprintf("%s/platforms/%s/attributes/?%s", c.baseURL, platform, query.Encode())

	var response models.AttributesResponse
	if err := c.do(ctx, creds, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to get %s attributes for category %s: %w", platform, categoryID, err)
	}

	schema := response.Schema()
	if response.Error != "" && len(schema) == 0 {
		return nil, fmt.Errorf("failed to get %s attributes for category %s: %w", platform, categoryID,
			&APIError{StatusCode: http.StatusOK, Message: response.Error})
	}
	if response.Error != "" {
		slog.Warn("Attribute response carried an error alongside fields",
			"platform", platform,
			"category_id", categoryID,
			"error", response.Error)
	}

	slog.Debug("Attribute schema retrieved",
		"platform", platform,
		"category_id", categoryID,
		"fields", len(schema))

	return schema, nil
}

// GetItem retrieves a listing from the backend
func (c *BackendClient) GetItem(ctx context.Context, creds Credentials, listingID string) (*models.Listing, error) {
	endpoint := fmt.Sprintf("%s/items/%s/", c.baseURL, url.PathEscape(listingID))

	var listing models.Listing
	if err := c.do(ctx, creds, http.MethodGet, endpoint, nil, &listing); err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", listingID, err)
	}
	return &listing, nil
}

// UpdateItem sends a PATCH for a listing and returns the updated listing
func (c *BackendClient) UpdateItem(ctx context.Context, creds Credentials, listingID string, update models.UpdateListingRequest) (*models.Listing, error) {
	endpoint := fmt.Sprintf("%s/items/%s/", c.baseURL, url.PathEscape(listingID))

	var listing models.Listing
	if err := c.do(ctx, creds, http.MethodPatch, endpoint, update, &listing); err != nil {
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID, err)
	}
	return &listing, nil
}

// do performs one authenticated JSON request and decodes the response into out
func (c *BackendClient) do(ctx context.Context, creds Credentials, method, endpoint string, body any, out any) error {
	if creds.Token == "" {
		return ErrMissingCredentials
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a human-readable message out of a backend error body
func errorMessage(raw []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, candidate := range []string{payload.Detail, payload.Error, payload.Message} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
