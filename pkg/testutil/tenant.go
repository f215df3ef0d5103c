package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tapline/tapline-backend/pkg/tenant"
)

// TestTenant represents a tenant created for testing
type TestTenant struct {
	ID         string
	Name       string
	Slug       string
	SchemaName string
}

// TenantManager manages test tenants for RLS-based pooled multi-tenancy.
// All tenants share the service schema; isolation comes from RLS policies
// keyed on app.current_tenant.
type TenantManager struct {
	db      *sqlx.DB
	tenants []TestTenant
	mu      sync.Mutex
}

// NewTenantManager creates a new tenant manager for tests
func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{
		db:      db,
		tenants: make([]TestTenant, 0),
	}
}

// CreateTenant registers a new tenant in public.tenants.
// Each test should use its own tenant; RLS keeps their rows apart.
//
// Usage:
//
//	tm := testutil.NewTenantManager(db)
//	tenant, _ := tm.CreateTenant(ctx, "harbor-taproom")
//	ctx = testutil.WithTestTenant(ctx, tenant)
func (tm *TenantManager) CreateTenant(ctx context.Context, name string) (*TestTenant, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := uuid.New().String()
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))

	_, err := tm.db.ExecContext(ctx, `
		INSERT INTO public.tenants (id, name, slug, schema_name, subscription_status)
		VALUES ($1, $2, $3, $4, 'active')
		ON CONFLICT (slug) DO NOTHING
	`, id, name, slug, "counting")
	if err != nil {
		return nil, fmt.Errorf("failed to register tenant: %w", err)
	}

	t := TestTenant{
		ID:         id,
		Name:       name,
		Slug:       slug,
		SchemaName: "counting",
	}

	tm.tenants = append(tm.tenants, t)
	return &t, nil
}

// DropTenant removes a tenant's rows and registry entry
func (tm *TenantManager) DropTenant(ctx context.Context, t *TestTenant) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.deleteTenantRows(ctx, t.ID); err != nil {
		return err
	}

	_, err := tm.db.ExecContext(ctx, "DELETE FROM public.tenants WHERE id = $1", t.ID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant record: %w", err)
	}

	for i, tracked := range tm.tenants {
		if tracked.ID == t.ID {
			tm.tenants = append(tm.tenants[:i], tm.tenants[i+1:]...)
			break
		}
	}

	return nil
}

// Cleanup removes all tenants created by this manager.
// Call this in TestMain or test cleanup.
func (tm *TenantManager) Cleanup(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var lastErr error
	for _, t := range tm.tenants {
		if err := tm.deleteTenantRows(ctx, t.ID); err != nil {
			lastErr = err
		}
		if _, err := tm.db.ExecContext(ctx, "DELETE FROM public.tenants WHERE id = $1", t.ID); err != nil {
			lastErr = err
		}
	}

	tm.tenants = make([]TestTenant, 0)
	return lastErr
}

func (tm *TenantManager) deleteTenantRows(ctx context.Context, tenantID string) error {
	// Order matters: children before parents
	tables := []string{
		"counting.scan_session_items",
		"counting.scanning_sessions",
		"counting.vendor_orders",
		"counting.inventory_items",
		"counting.vendors",
		"counting.catalog_entries",
	}
	for _, table := range tables {
		_, err := tm.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1", table), tenantID)
		if err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

// WithTestTenant creates a context with tenant information for testing.
// This is the primary way to set up tenant context in tests.
func WithTestTenant(ctx context.Context, t *TestTenant) context.Context {
	return tenant.WithTenantContext(ctx, t.ID, t.Slug, t.SchemaName)
}

// WithTestTenantValues creates a context with custom tenant values.
// Useful for testing error cases or edge conditions.
func WithTestTenantValues(ctx context.Context, id, slug, schema string) context.Context {
	return tenant.WithTenantContext(ctx, id, slug, schema)
}

// TestTenantContext creates a context with a fake tenant for simple unit tests
// that don't need actual database isolation.
func TestTenantContext() context.Context {
	return tenant.WithTenantContext(
		context.Background(),
		"test-tenant-id",
		"test-tenant",
		"counting",
	)
}

// CountingMigrations returns the counting service schema for tests:
// the counting schema, its tables, and the RLS policies that enforce
// tenant isolation. FORCE ROW LEVEL SECURITY makes the policies apply
// to the table owner too, which is what the test connection uses.
func CountingMigrations() []string {
	return []string{
		`CREATE SCHEMA IF NOT EXISTS counting`,

		// Local product catalog (write-through cache over external registries)
		`CREATE TABLE IF NOT EXISTS counting.catalog_entries (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			barcode VARCHAR(20) NOT NULL,
			format VARCHAR(10),
			name VARCHAR(255) NOT NULL,
			brand VARCHAR(255),
			category VARCHAR(100),
			unit_size VARCHAR(50),
			image_url TEXT,
			source VARCHAR(50) NOT NULL DEFAULT 'manual',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT catalog_entries_tenant_barcode_key UNIQUE (tenant_id, barcode)
		)`,

		// Vendors
		`CREATE TABLE IF NOT EXISTS counting.vendors (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			contact_email VARCHAR(255),
			phone VARCHAR(50),
			contracted_delivery_days INT NOT NULL DEFAULT 7,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Vendor order history (feeds the rating engine)
		`CREATE TABLE IF NOT EXISTS counting.vendor_orders (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			vendor_id UUID NOT NULL REFERENCES counting.vendors(id) ON DELETE CASCADE,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			ordered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			delivered_at TIMESTAMPTZ,
			total_cents BIGINT NOT NULL DEFAULT 0,
			CONSTRAINT vendor_orders_status_valid CHECK (status IN ('pending', 'completed', 'cancelled'))
		)`,

		// Inventory items with par levels and ordering parameters
		`CREATE TABLE IF NOT EXISTS counting.inventory_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			barcode VARCHAR(20),
			name VARCHAR(255) NOT NULL,
			category VARCHAR(100),
			current_quantity INT NOT NULL DEFAULT 0,
			par_low INT NOT NULL DEFAULT 0,
			par_high INT NOT NULL DEFAULT 0,
			min_order_qty INT NOT NULL DEFAULT 1,
			case_size INT NOT NULL DEFAULT 1,
			unit_cost_cents BIGINT NOT NULL DEFAULT 0,
			vendor_id UUID REFERENCES counting.vendors(id),
			location_id UUID,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Scan sessions with workflow config frozen at start time
		`CREATE TABLE IF NOT EXISTS counting.scanning_sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			workflow_type VARCHAR(30) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			location_id UUID,
			allow_quantity_edit BOOLEAN NOT NULL DEFAULT TRUE,
			require_location BOOLEAN NOT NULL DEFAULT FALSE,
			auto_apply_changes BOOLEAN NOT NULL DEFAULT FALSE,
			instructions TEXT,
			started_by UUID,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			CONSTRAINT scanning_sessions_session_type_valid CHECK (workflow_type IN ('inventory_count', 'receiving', 'quick_update', 'stock_take')),
			CONSTRAINT scanning_sessions_status_valid CHECK (status IN ('active', 'completed', 'cancelled'))
		)`,

		// One row per (session, barcode); scans accumulate via upsert
		`CREATE TABLE IF NOT EXISTS counting.scan_session_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			session_id UUID NOT NULL REFERENCES counting.scanning_sessions(id) ON DELETE CASCADE,
			barcode VARCHAR(20) NOT NULL,
			product_name VARCHAR(255),
			location_id UUID,
			notes TEXT,
			quantity INT NOT NULL DEFAULT 0,
			scan_count INT NOT NULL DEFAULT 0,
			last_scanned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT scan_session_items_session_barcode_key UNIQUE (session_id, barcode),
			CONSTRAINT scan_session_items_quantity_non_negative CHECK (quantity >= 0)
		)`,

		// RLS policies: every table is filtered on app.current_tenant
		`ALTER TABLE counting.catalog_entries ENABLE ROW LEVEL SECURITY`,
		`ALTER TABLE counting.catalog_entries FORCE ROW LEVEL SECURITY`,
		`DO $$ BEGIN
			CREATE POLICY tenant_isolation ON counting.catalog_entries
				USING (tenant_id = current_setting('app.current_tenant')::uuid)
				WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`,

		`ALTER TABLE counting.vendors ENABLE ROW LEVEL SECURITY`,
		`ALTER TABLE counting.vendors FORCE ROW LEVEL SECURITY`,
		`DO $$ BEGIN
			CREATE POLICY tenant_isolation ON counting.vendors
				USING (tenant_id = current_setting('app.current_tenant')::uuid)
				WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`,

		`ALTER TABLE counting.vendor_orders ENABLE ROW LEVEL SECURITY`,
		`ALTER TABLE counting.vendor_orders FORCE ROW LEVEL SECURITY`,
		`DO $$ BEGIN
			CREATE POLICY tenant_isolation ON counting.vendor_orders
				USING (tenant_id = current_setting('app.current_tenant')::uuid)
				WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`,

		`ALTER TABLE counting.inventory_items ENABLE ROW LEVEL SECURITY`,
		`ALTER TABLE counting.inventory_items FORCE ROW LEVEL SECURITY`,
		`DO $$ BEGIN
			CREATE POLICY tenant_isolation ON counting.inventory_items
				USING (tenant_id = current_setting('app.current_tenant')::uuid)
				WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`,

		`ALTER TABLE counting.scanning_sessions ENABLE ROW LEVEL SECURITY`,
		`ALTER TABLE counting.scanning_sessions FORCE ROW LEVEL SECURITY`,
		`DO $$ BEGIN
			CREATE POLICY tenant_isolation ON counting.scanning_sessions
				USING (tenant_id = current_setting('app.current_tenant')::uuid)
				WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`,

		`ALTER TABLE counting.scan_session_items ENABLE ROW LEVEL SECURITY`,
		`ALTER TABLE counting.scan_session_items FORCE ROW LEVEL SECURITY`,
		`DO $$ BEGIN
			CREATE POLICY tenant_isolation ON counting.scan_session_items
				USING (tenant_id = current_setting('app.current_tenant')::uuid)
				WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_catalog_entries_barcode ON counting.catalog_entries(tenant_id, barcode)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_items_barcode ON counting.inventory_items(tenant_id, barcode) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_scanning_sessions_status ON counting.scanning_sessions(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_session_items_session ON counting.scan_session_items(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vendor_orders_vendor ON counting.vendor_orders(tenant_id, vendor_id)`,
	}
}

// ApplyMigrations runs the given DDL statements against the database
func ApplyMigrations(ctx context.Context, db *sqlx.DB, migrations []string) error {
	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}
