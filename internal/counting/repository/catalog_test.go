package repository_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx, "counting, public")
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer suite.Cleanup(ctx)
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

func strPtr(s string) *string {
	return &s
}

// --- Catalog Repository Tests ---

func TestCatalogRepository_Upsert_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "catalog-create")
	tenantCtx := suite.TenantContext(tenant)

	repo := repository.NewCatalogRepository(suite.DB)

	entry := &repository.CatalogEntry{
		Barcode:  "4006381333931",
		Format:   strPtr("ean13"),
		Name:     "Stabilo Boss Highlighter",
		Brand:    strPtr("Stabilo"),
		Category: strPtr("supplies"),
		Source:   "open_food_facts",
	}
	err := repo.Upsert(tenantCtx, entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	got, err := repo.GetByBarcode(tenantCtx, "4006381333931")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "Stabilo Boss Highlighter", got.Name)
	assert.Equal(t, "open_food_facts", got.Source)
}

func TestCatalogRepository_Upsert_RefreshesExisting(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "catalog-refresh")
	tenantCtx := suite.TenantContext(tenant)

	repo := repository.NewCatalogRepository(suite.DB)

	first := &repository.CatalogEntry{
		Barcode: "0036000291452",
		Name:    "Old Name",
		Source:  "manual",
	}
	require.NoError(t, repo.Upsert(tenantCtx, first))

	second := &repository.CatalogEntry{
		Barcode: "0036000291452",
		Name:    "Refreshed Name",
		Brand:   strPtr("Fresh Brand"),
		Source:  "upcitemdb",
	}
	require.NoError(t, repo.Upsert(tenantCtx, second))

	// Conflict resolution keeps a single row per barcode
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByBarcode(tenantCtx, "0036000291452")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Refreshed Name", got.Name)
	assert.Equal(t, "upcitemdb", got.Source)
	require.NotNil(t, got.Brand)
	assert.Equal(t, "Fresh Brand", *got.Brand)
}

func TestCatalogRepository_GetByBarcode_Miss(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "catalog-miss")
	tenantCtx := suite.TenantContext(tenant)

	repo := repository.NewCatalogRepository(suite.DB)

	got, err := repo.GetByBarcode(tenantCtx, "9999999999994")
	require.NoError(t, err, "a catalog miss is not an error")
	assert.Nil(t, got)
}

func TestCatalogRepository_GetByBarcodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "catalog-multi")
	tenantCtx := suite.TenantContext(tenant)

	repo := repository.NewCatalogRepository(suite.DB)

	require.NoError(t, repo.Upsert(tenantCtx, &repository.CatalogEntry{
		Barcode: "4006381333931", Name: "A", Source: "manual",
	}))
	require.NoError(t, repo.Upsert(tenantCtx, &repository.CatalogEntry{
		Barcode: "0036000291452", Name: "B", Source: "manual",
	}))

	// One of the requested barcodes has no entry
	entries, err := repo.GetByBarcodes(tenantCtx, []string{"4006381333931", "0036000291452", "0000000000000"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = repo.GetByBarcodes(tenantCtx, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCatalogRepository_TenantIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	tenant1 := suite.SetupCountingTenant(t, ctx, "catalog-iso-1")
	tenant2 := suite.SetupCountingTenant(t, ctx, "catalog-iso-2")

	ctx1 := suite.TenantContext(tenant1)
	ctx2 := suite.TenantContext(tenant2)

	repo := repository.NewCatalogRepository(suite.DB)

	require.NoError(t, repo.Upsert(ctx1, &repository.CatalogEntry{
		Barcode: "4006381333931", Name: "Tenant1 Product", Source: "manual",
	}))

	// Tenant 2 must not see tenant 1's entry
	got, err := repo.GetByBarcode(ctx2, "4006381333931")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Both tenants can hold the same barcode independently
	require.NoError(t, repo.Upsert(ctx2, &repository.CatalogEntry{
		Barcode: "4006381333931", Name: "Tenant2 Product", Source: "manual",
	}))

	got1, err := repo.GetByBarcode(ctx1, "4006381333931")
	require.NoError(t, err)
	require.NotNil(t, got1)
	assert.Equal(t, "Tenant1 Product", got1.Name)

	got2, err := repo.GetByBarcode(ctx2, "4006381333931")
	require.NoError(t, err)
	require.NotNil(t, got2)
	assert.Equal(t, "Tenant2 Product", got2.Name)
}
