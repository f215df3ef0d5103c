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

// Vendor is a supplier with a contracted delivery window
type Vendor struct {
	ID                     string    `db:"id" json:"id"`
	Name                   string    `db:"name" json:"name"`
	ContactEmail           *string   `db:"contact_email" json:"contact_email,omitempty"`
	Phone                  *string   `db:"phone" json:"phone,omitempty"`
	ContractedDeliveryDays int       `db:"contracted_delivery_days" json:"contracted_delivery_days"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// VendorOrder is one purchase order placed with a vendor
type VendorOrder struct {
	ID          string     `db:"id" json:"id"`
	VendorID    string     `db:"vendor_id" json:"vendor_id"`
	Status      string     `db:"status" json:"status"`
	OrderedAt   time.Time  `db:"ordered_at" json:"ordered_at"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	TotalCents  int64      `db:"total_cents" json:"total_cents"`
}

// VendorOrderStats aggregates a vendor's order history for the rating engine
type VendorOrderStats struct {
	TotalOrders      int     `db:"total_orders" json:"total_orders"`
	CompletedOrders  int     `db:"completed_orders" json:"completed_orders"`
	CancelledOrders  int     `db:"cancelled_orders" json:"cancelled_orders"`
	OnTimeDeliveries int     `db:"on_time_deliveries" json:"on_time_deliveries"`
	AvgDeliveryDays  float64 `db:"avg_delivery_days" json:"avg_delivery_days"`
}

// VendorRepository handles vendor persistence and order statistics
type VendorRepository struct {
	db *database.DB
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *database.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

// Create creates a new vendor
// TENANT-ISOLATED via RLS.
func (r *VendorRepository) Create(ctx context.Context, v *Vendor) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO vendors (id, tenant_id, name, contact_email, phone, contracted_delivery_days)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`
		return r.db.QueryRowxContext(ctx, query,
			v.ID, tenantID, v.Name, v.ContactEmail, v.Phone, v.ContractedDeliveryDays,
		).Scan(&v.CreatedAt, &v.UpdatedAt)
	})
}

// CreateOrder records a purchase order against a vendor
// TENANT-ISOLATED via RLS.
func (r *VendorRepository) CreateOrder(ctx context.Context, o *VendorOrder) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.OrderedAt.IsZero() {
		o.OrderedAt = time.Now().UTC()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO vendor_orders (id, tenant_id, vendor_id, status, ordered_at, delivered_at, total_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := r.db.ExecContext(ctx, query,
			o.ID, tenantID, o.VendorID, o.Status, o.OrderedAt, o.DeliveredAt, o.TotalCents)
		return err
	})
}

// GetByID gets a vendor by ID
// TENANT-ISOLATED via RLS.
func (r *VendorRepository) GetByID(ctx context.Context, id string) (*Vendor, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var v Vendor

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT id, name, contact_email, phone, contracted_delivery_days, created_at, updated_at
			FROM vendors WHERE id = $1
		`
		return r.db.GetContext(ctx, &v, query, id)
	})

	if err == sql.ErrNoRows {
		return nil, errors.NotFound("vendor")
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// GetOrderStats aggregates the vendor's order history in a single query.
// On-time means delivered within the vendor's contracted delivery window.
// TENANT-ISOLATED via RLS.
func (r *VendorRepository) GetOrderStats(ctx context.Context, vendorID string) (*VendorOrderStats, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var stats VendorOrderStats

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT
				COUNT(*) AS total_orders,
				COUNT(*) FILTER (WHERE o.status = 'completed') AS completed_orders,
				COUNT(*) FILTER (WHERE o.status = 'cancelled') AS cancelled_orders,
				COUNT(*) FILTER (
					WHERE o.status = 'completed'
					  AND o.delivered_at IS NOT NULL
					  AND o.delivered_at <= o.ordered_at + make_interval(days => v.contracted_delivery_days)
				) AS on_time_deliveries,
				COALESCE(AVG(
					EXTRACT(EPOCH FROM (o.delivered_at - o.ordered_at)) / 86400.0
				) FILTER (WHERE o.delivered_at IS NOT NULL), 0) AS avg_delivery_days
			FROM vendor_orders o
			JOIN vendors v ON v.id = o.vendor_id
			WHERE o.vendor_id = $1
		`
		return r.db.GetContext(ctx, &stats, query, vendorID)
	})

	if err != nil {
		return nil, err
	}

	return &stats, nil
}
