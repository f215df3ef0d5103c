package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tapline/tapline-backend/pkg/database"
	"github.com/tapline/tapline-backend/pkg/tenant"
)

// CatalogEntry is a locally cached product record. External registry hits
// are written through here so repeat scans never leave the building.
type CatalogEntry struct {
	ID        string    `db:"id" json:"id"`
	Barcode   string    `db:"barcode" json:"barcode"`
	Format    *string   `db:"format" json:"format,omitempty"`
	Name      string    `db:"name" json:"name"`
	Brand     *string   `db:"brand" json:"brand,omitempty"`
	Category  *string   `db:"category" json:"category,omitempty"`
	UnitSize  *string   `db:"unit_size" json:"unit_size,omitempty"`
	ImageURL  *string   `db:"image_url" json:"image_url,omitempty"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CatalogRepository handles local product catalog persistence
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const catalogColumns = `id, barcode, format, name, brand, category, unit_size, image_url, source, created_at, updated_at`

// GetByBarcode gets a catalog entry by exact barcode.
// Returns (nil, nil) when no entry exists; a miss is not an error here.
// TENANT-ISOLATED via RLS.
func (r *CatalogRepository) GetByBarcode(ctx context.Context, barcode string) (*CatalogEntry, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var entry CatalogEntry

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT ` + catalogColumns + ` FROM catalog_entries WHERE barcode = $1`
		return r.db.GetContext(ctx, &entry, query, barcode)
	})

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// GetByBarcodes gets catalog entries matching any of the given barcodes.
// Used to resolve alternative representations in a single query.
// TENANT-ISOLATED via RLS.
func (r *CatalogRepository) GetByBarcodes(ctx context.Context, barcodes []string) ([]*CatalogEntry, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if len(barcodes) == 0 {
		return nil, nil
	}

	var entries []*CatalogEntry

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT ` + catalogColumns + ` FROM catalog_entries WHERE barcode = ANY($1) ORDER BY barcode`
		return r.db.SelectContext(ctx, &entries, query, pq.Array(barcodes))
	})

	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Upsert inserts a catalog entry or refreshes an existing one for the
// same barcode. Registry write-through lands here.
// TENANT-ISOLATED via RLS.
func (r *CatalogRepository) Upsert(ctx context.Context, entry *CatalogEntry) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	return mapWriteError(r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO catalog_entries (id, tenant_id, barcode, format, name, brand, category, unit_size, image_url, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (tenant_id, barcode) DO UPDATE SET
				format = EXCLUDED.format,
				name = EXCLUDED.name,
				brand = EXCLUDED.brand,
				category = EXCLUDED.category,
				unit_size = EXCLUDED.unit_size,
				image_url = EXCLUDED.image_url,
				source = EXCLUDED.source,
				updated_at = NOW()
			RETURNING id, created_at, updated_at
		`
		return r.db.QueryRowxContext(ctx, query,
			entry.ID, tenantID, entry.Barcode, entry.Format, entry.Name,
			entry.Brand, entry.Category, entry.UnitSize, entry.ImageURL, entry.Source,
		).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	}))
}
