package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/tapline/tapline-backend/internal/counting/barcode"
	"github.com/tapline/tapline-backend/internal/counting/events"
	"github.com/tapline/tapline-backend/internal/counting/registry"
	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/pkg/errors"
	"github.com/tapline/tapline-backend/pkg/logger"
)

// Data source tags for lookup responses
const (
	DataSourceLocalCatalog = "local_catalog"
	DataSourceNotFound     = "not_found"
)

// MaxBatchLookupSize caps a single batch lookup request
const MaxBatchLookupSize = 50

// LookupOptions toggles the optional lookup behaviors independently
type LookupOptions struct {
	CheckInventory      bool
	IncludeAlternatives bool
	EnrichProduct       bool
}

// LookupResult is the outcome of a single barcode lookup.
// Found=false with no error is the normal shape for an unknown barcode.
type LookupResult struct {
	Barcode          string                      `json:"barcode"`
	Format           string                      `json:"format"`
	Found            bool                        `json:"found"`
	Product          *repository.CatalogEntry    `json:"product,omitempty"`
	InventoryMatches []*repository.InventoryItem `json:"inventory_matches,omitempty"`
	Alternatives     []string                    `json:"alternatives,omitempty"`
	DataSource       string                      `json:"data_source"`
}

// BatchLookupError is one failed entry of a batch lookup
type BatchLookupError struct {
	Barcode string `json:"barcode"`
	Error   string `json:"error"`
}

// BatchLookupResult pairs per-code results with per-code errors; a batch
// request never fails as a whole because single entries are bad.
type BatchLookupResult struct {
	TotalRequested int                `json:"total_requested"`
	Results        []*LookupResult    `json:"results"`
	Errors         []BatchLookupError `json:"errors"`
}

// LookupService resolves barcodes to product data: local catalog first,
// then the external provider chain with write-through caching.
type LookupService struct {
	catalogRepo   *repository.CatalogRepository
	inventoryRepo *repository.InventoryRepository
	providers     *registry.Chain
	publisher     *events.CountingEventPublisher
	logger        *logger.Logger
}

// NewLookupService creates a new lookup service
func NewLookupService(
	catalogRepo *repository.CatalogRepository,
	inventoryRepo *repository.InventoryRepository,
	providers *registry.Chain,
	publisher *events.CountingEventPublisher,
	log *logger.Logger,
) *LookupService {
	return &LookupService{
		catalogRepo:   catalogRepo,
		inventoryRepo: inventoryRepo,
		providers:     providers,
		publisher:     publisher,
		logger:        log,
	}
}

// Lookup resolves one barcode. Validation failures are errors; an unknown
// barcode is a successful result with Found=false.
func (s *LookupService) Lookup(ctx context.Context, raw string, opts LookupOptions) (*LookupResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.Validation(map[string]string{"barcode": "barcode is required"})
	}

	bc, err := barcode.Validate(raw)
	if err != nil {
		return nil, errors.Validation(map[string]string{"barcode": err.Error()})
	}

	result := &LookupResult{
		Barcode:    bc.Code,
		Format:     string(bc.Format),
		DataSource: DataSourceNotFound,
	}

	if opts.IncludeAlternatives {
		result.Alternatives = barcode.Alternatives(bc)
	}

	entry, err := s.catalogRepo.GetByBarcode(ctx, bc.Code)
	if err != nil {
		return nil, err
	}

	if entry != nil {
		result.Found = true
		result.Product = entry
		result.DataSource = DataSourceLocalCatalog
	} else {
		record, err := s.providers.Lookup(ctx, bc.Code)
		if err != nil {
			return nil, err
		}
		if record != nil {
			entry = s.entryFromRecord(bc, record, opts.EnrichProduct)

			// Write-through so the next lookup stays local. A cache write
			// failure is logged, not surfaced: the caller still gets the hit.
			if err := s.catalogRepo.Upsert(ctx, entry); err != nil {
				s.logger.Error().Err(err).Str("barcode", bc.Code).Msg("failed to cache catalog entry")
			} else {
				s.publisher.PublishProductRegistered(ctx, entry)
			}

			result.Found = true
			result.Product = entry
			result.DataSource = record.Source
		}
	}

	if opts.EnrichProduct && result.Product != nil {
		enrichEntry(result.Product)
	}

	if opts.CheckInventory {
		matches, err := s.inventoryRepo.ListByBarcode(ctx, bc.Code)
		if err != nil {
			return nil, err
		}
		result.InventoryMatches = matches
	}

	return result, nil
}

// LookupBatch resolves up to MaxBatchLookupSize barcodes, isolating
// per-code validation failures into the errors array.
func (s *LookupService) LookupBatch(ctx context.Context, codes []string, opts LookupOptions) (*BatchLookupResult, error) {
	if len(codes) == 0 {
		return nil, errors.Validation(map[string]string{"barcodes": "barcodes array is required"})
	}
	if len(codes) > MaxBatchLookupSize {
		return nil, errors.Validation(map[string]string{"barcodes": "at most 50 barcodes per batch"})
	}

	batch := &BatchLookupResult{
		TotalRequested: len(codes),
		Results:        make([]*LookupResult, 0, len(codes)),
		Errors:         make([]BatchLookupError, 0),
	}

	for _, code := range codes {
		result, err := s.Lookup(ctx, code, opts)
		if err != nil {
			var appErr *errors.AppError
			if errors.As(err, &appErr) && appErr.StatusCode < 500 {
				message := appErr.Message
				if detail, ok := appErr.Details["barcode"]; ok {
					message = detail
				}
				batch.Errors = append(batch.Errors, BatchLookupError{
					Barcode: code,
					Error:   message,
				})
				continue
			}
			// Infrastructure failures abort the batch
			return nil, err
		}
		batch.Results = append(batch.Results, result)
	}

	return batch, nil
}

// entryFromRecord maps an external registry record to a catalog entry
func (s *LookupService) entryFromRecord(bc *barcode.Barcode, record *registry.ProductRecord, enrich bool) *repository.CatalogEntry {
	format := string(bc.Format)

	entry := &repository.CatalogEntry{
		Barcode: bc.Code,
		Format:  &format,
		Name:    record.Name,
		Source:  record.Source,
	}
	if record.Brand != "" {
		entry.Brand = &record.Brand
	}
	if record.Category != "" {
		entry.Category = &record.Category
	}
	if record.UnitSize != "" {
		entry.UnitSize = &record.UnitSize
	}
	if record.ImageURL != "" {
		entry.ImageURL = &record.ImageURL
	}

	if enrich {
		enrichEntry(entry)
	}

	return entry
}

var unitSizePattern = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s?(ml|cl|l|oz|fl oz|g|kg|lb)\b`)

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"beer", []string{"beer", "lager", "ale", "ipa", "stout", "pilsner", "porter"}},
	{"wine", []string{"wine", "merlot", "cabernet", "chardonnay", "riesling", "prosecco", "champagne"}},
	{"spirits", []string{"vodka", "gin", "whiskey", "whisky", "rum", "tequila", "bourbon", "brandy", "liqueur"}},
	{"non_alcoholic", []string{"juice", "soda", "cola", "water", "tonic", "lemonade"}},
}

// enrichEntry infers missing category and unit size from the product name.
// Inference only fills gaps; registry data always wins.
func enrichEntry(entry *repository.CatalogEntry) {
	name := strings.ToLower(entry.Name)

	if entry.Category == nil || *entry.Category == "" {
		for _, group := range categoryKeywords {
			for _, kw := range group.keywords {
				if strings.Contains(name, kw) {
					category := group.category
					entry.Category = &category
					break
				}
			}
			if entry.Category != nil && *entry.Category != "" {
				break
			}
		}
	}

	if entry.UnitSize == nil || *entry.UnitSize == "" {
		if m := unitSizePattern.FindString(entry.Name); m != "" {
			entry.UnitSize = &m
		}
	}
}
