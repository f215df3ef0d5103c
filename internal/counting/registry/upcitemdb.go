package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tapline/tapline-backend/pkg/logger"
)

const upcItemDBName = "upcitemdb"

// UPCItemDBProvider looks up barcodes in the UPCitemdb database.
// Without an API key it uses the trial endpoint (rate limited).
type UPCItemDBProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewUPCItemDBProvider creates a new UPCitemdb client
func NewUPCItemDBProvider(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *UPCItemDBProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UPCItemDBProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Name returns the provider identifier used as a data source tag
func (p *UPCItemDBProvider) Name() string {
	return upcItemDBName
}

type upcItemDBResponse struct {
	Code  string `json:"code"`
	Total int    `json:"total"`
	Items []struct {
		Title    string   `json:"title"`
		Brand    string   `json:"brand"`
		Category string   `json:"category"`
		Size     string   `json:"size"`
		Images   []string `json:"images"`
	} `json:"items"`
}

// LookupByCode queries the UPCitemdb lookup endpoint.
// Returns (nil, nil) on an unknown barcode.
func (p *UPCItemDBProvider) LookupByCode(ctx context.Context, code string) (*ProductRecord, error) {
	endpoint := p.baseURL + "/prod/trial/lookup?upc=" + url.QueryEscape(code)
	if p.apiKey != "" {
		endpoint = p.baseURL + "/prod/v1/lookup?upc=" + url.QueryEscape(code)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("user_key", p.apiKey)
		req.Header.Set("key_type", "3scale")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upcitemdb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upcitemdb returned status %d", resp.StatusCode)
	}

	var body upcItemDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode upcitemdb response: %w", err)
	}

	if body.Code != "OK" || body.Total == 0 || len(body.Items) == 0 {
		return nil, nil
	}

	item := body.Items[0]
	if item.Title == "" {
		return nil, nil
	}

	record := &ProductRecord{
		Barcode:  code,
		Name:     item.Title,
		Brand:    item.Brand,
		Category: item.Category,
		UnitSize: item.Size,
		Source:   upcItemDBName,
	}
	if len(item.Images) > 0 {
		record.ImageURL = item.Images[0]
	}

	return record, nil
}
