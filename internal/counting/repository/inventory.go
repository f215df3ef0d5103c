package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/tapline/tapline-backend/pkg/database"
	"github.com/tapline/tapline-backend/pkg/errors"
	"github.com/tapline/tapline-backend/pkg/tenant"
)

// InventoryItem is a stocked item with par levels and ordering parameters
type InventoryItem struct {
	ID              string    `db:"id" json:"id"`
	Barcode         *string   `db:"barcode" json:"barcode,omitempty"`
	Name            string    `db:"name" json:"name"`
	Category        *string   `db:"category" json:"category,omitempty"`
	CurrentQuantity int       `db:"current_quantity" json:"current_quantity"`
	ParLow          int       `db:"par_low" json:"par_low"`
	ParHigh         int       `db:"par_high" json:"par_high"`
	MinOrderQty     int       `db:"min_order_qty" json:"min_order_qty"`
	CaseSize        int       `db:"case_size" json:"case_size"`
	UnitCostCents   int64     `db:"unit_cost_cents" json:"unit_cost_cents"`
	VendorID        *string   `db:"vendor_id" json:"vendor_id,omitempty"`
	LocationID      *string   `db:"location_id" json:"location_id,omitempty"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// InventoryRepository handles inventory item persistence
type InventoryRepository struct {
	db *database.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *database.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

const inventoryColumns = `id, barcode, name, category, current_quantity, par_low, par_high, min_order_qty, case_size, unit_cost_cents, vendor_id, location_id, is_active, created_at, updated_at`

// Create creates a new inventory item
// TENANT-ISOLATED via RLS.
func (r *InventoryRepository) Create(ctx context.Context, item *InventoryItem) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	return mapWriteError(r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO inventory_items (
				id, tenant_id, barcode, name, category, current_quantity,
				par_low, par_high, min_order_qty, case_size, unit_cost_cents,
				vendor_id, location_id, is_active
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING created_at, updated_at
		`
		return r.db.QueryRowxContext(ctx, query,
			item.ID, tenantID, item.Barcode, item.Name, item.Category, item.CurrentQuantity,
			item.ParLow, item.ParHigh, item.MinOrderQty, item.CaseSize, item.UnitCostCents,
			item.VendorID, item.LocationID, item.IsActive,
		).Scan(&item.CreatedAt, &item.UpdatedAt)
	}))
}

// GetByID gets an inventory item by ID
// TENANT-ISOLATED via RLS.
func (r *InventoryRepository) GetByID(ctx context.Context, id string) (*InventoryItem, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var item InventoryItem

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT ` + inventoryColumns + ` FROM inventory_items WHERE id = $1 AND is_active`
		return r.db.GetContext(ctx, &item, query, id)
	})

	if err == sql.ErrNoRows {
		return nil, errors.NotFound("inventory item")
	}
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// ListByBarcode lists active inventory items carrying the given barcode.
// Zero matches is a valid result, not an error: the same product can sit
// in several locations, or in none.
// TENANT-ISOLATED via RLS.
func (r *InventoryRepository) ListByBarcode(ctx context.Context, barcode string) ([]*InventoryItem, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var items []*InventoryItem

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT ` + inventoryColumns + ` FROM inventory_items WHERE barcode = $1 AND is_active ORDER BY name`
		return r.db.SelectContext(ctx, &items, query, barcode)
	})

	if err != nil {
		return nil, err
	}

	return items, nil
}

// ListBelowPar lists active items whose quantity sits at or below par low.
// Feeds the reorder engine.
// TENANT-ISOLATED via RLS.
func (r *InventoryRepository) ListBelowPar(ctx context.Context) ([]*InventoryItem, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var items []*InventoryItem

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT ` + inventoryColumns + ` FROM inventory_items WHERE current_quantity <= par_low AND is_active ORDER BY name`
		return r.db.SelectContext(ctx, &items, query)
	})

	if err != nil {
		return nil, err
	}

	return items, nil
}

// QuantityChange is an updated item together with its pre-update quantity
type QuantityChange struct {
	InventoryItem
	OldQuantity int `db:"old_quantity" json:"old_quantity"`
}

const inventoryColumnsQualified = `i.id, i.barcode, i.name, i.category, i.current_quantity, i.par_low, i.par_high, i.min_order_qty, i.case_size, i.unit_cost_cents, i.vendor_id, i.location_id, i.is_active, i.created_at, i.updated_at`

// AdjustQuantityByBarcode applies a relative delta to every active item
// carrying the barcode in one atomic statement. No read-modify-write:
// the addition happens inside the UPDATE, so concurrent scanners never
// lose increments. Quantities floor at zero.
// Returns the changes; an empty slice means no item matched.
// TENANT-ISOLATED via RLS.
func (r *InventoryRepository) AdjustQuantityByBarcode(ctx context.Context, barcode string, delta int) ([]*QuantityChange, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var changes []*QuantityChange

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE inventory_items i
			SET current_quantity = GREATEST(i.current_quantity + $2, 0), updated_at = NOW()
			FROM (
				SELECT id, current_quantity AS old_quantity
				FROM inventory_items
				WHERE barcode = $1 AND is_active
				FOR UPDATE
			) prev
			WHERE i.id = prev.id
			RETURNING ` + inventoryColumnsQualified + `, prev.old_quantity`
		return r.db.SelectContext(ctx, &changes, query, barcode, delta)
	})

	if err != nil {
		return nil, err
	}

	return changes, nil
}

// SetQuantityByBarcode sets the absolute quantity on every active item
// carrying the barcode. Used when a completed count establishes truth.
// TENANT-ISOLATED via RLS.
func (r *InventoryRepository) SetQuantityByBarcode(ctx context.Context, barcode string, quantity int) ([]*QuantityChange, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var changes []*QuantityChange

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE inventory_items i
			SET current_quantity = $2, updated_at = NOW()
			FROM (
				SELECT id, current_quantity AS old_quantity
				FROM inventory_items
				WHERE barcode = $1 AND is_active
				FOR UPDATE
			) prev
			WHERE i.id = prev.id
			RETURNING ` + inventoryColumnsQualified + `, prev.old_quantity`
		return r.db.SelectContext(ctx, &changes, query, barcode, quantity)
	})

	if err != nil {
		return nil, mapWriteError(err)
	}

	return changes, nil
}
