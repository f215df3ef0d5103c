package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tapline/tapline-backend/pkg/logger"
)

const openFoodFactsName = "open_food_facts"

// OpenFoodFactsProvider looks up barcodes in the Open Food Facts database
type OpenFoodFactsProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewOpenFoodFactsProvider creates a new Open Food Facts client
func NewOpenFoodFactsProvider(baseURL string, timeout time.Duration, log *logger.Logger) *OpenFoodFactsProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenFoodFactsProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Name returns the provider identifier used as a data source tag
func (p *OpenFoodFactsProvider) Name() string {
	return openFoodFactsName
}

type openFoodFactsResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
		Categories  string `json:"categories"`
		Quantity    string `json:"quantity"`
		ImageURL    string `json:"image_url"`
	} `json:"product"`
}

// LookupByCode queries the Open Food Facts v2 product endpoint.
// Returns (nil, nil) on an unknown barcode.
func (p *OpenFoodFactsProvider) LookupByCode(ctx context.Context, code string) (*ProductRecord, error) {
	url := fmt.Sprintf("%s/api/v2/product/%s.json", p.baseURL, code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open food facts request failed: %w", err)
	}
	defer resp.Body.Close()

	// Unknown products come back as 404
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open food facts returned status %d", resp.StatusCode)
	}

	var body openFoodFactsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode open food facts response: %w", err)
	}

	// status 0 with 200 also means not found
	if body.Status != 1 || body.Product.ProductName == "" {
		return nil, nil
	}

	return &ProductRecord{
		Barcode:  code,
		Name:     body.Product.ProductName,
		Brand:    body.Product.Brands,
		Category: body.Product.Categories,
		UnitSize: body.Product.Quantity,
		ImageURL: body.Product.ImageURL,
		Source:   openFoodFactsName,
	}, nil
}
