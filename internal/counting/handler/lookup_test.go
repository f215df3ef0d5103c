package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapline/tapline-backend/internal/counting/repository"
)

func TestLookup_Success(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-lookup")
	tenantCtx := suite.TenantContext(tenant)

	catalogRepo := repository.NewCatalogRepository(suite.DB)
	require.NoError(t, catalogRepo.Upsert(tenantCtx, &repository.CatalogEntry{
		Barcode: "4006381333931",
		Name:    "Harbor Lager",
		Source:  "manual",
	}))

	r := newTestRouter()
	rr := do(r, tenant, "GET", "/api/v1/counting/lookup?barcode=4006381333931", nil)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	assert.Equal(t, true, data["found"])
	assert.Equal(t, "local_catalog", data["data_source"])
	assert.Equal(t, "Harbor Lager", data["product"].(map[string]interface{})["name"])
}

func TestLookup_NotFoundIsStillOK(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-lookup-miss")

	r := newTestRouter()
	rr := do(r, tenant, "GET", "/api/v1/counting/lookup?barcode=4006381333931", nil)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	assert.Equal(t, false, data["found"])
	assert.Equal(t, "not_found", data["data_source"])
}

func TestLookup_MissingAndInvalidBarcode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-lookup-bad")
	r := newTestRouter()

	rr := do(r, tenant, "GET", "/api/v1/counting/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(r, tenant, "GET", "/api/v1/counting/lookup?barcode=12345", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", rr.Body.String())
}

func TestLookup_InventoryFlag(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-lookup-inv")
	tenantCtx := suite.TenantContext(tenant)

	inventoryRepo := repository.NewInventoryRepository(suite.DB)
	require.NoError(t, inventoryRepo.Create(tenantCtx, &repository.InventoryItem{
		Barcode:         strPtr("4006381333931"),
		Name:            "Stocked Lager",
		CurrentQuantity: 24,
		ParLow:          10,
		ParHigh:         40,
		MinOrderQty:     6,
		CaseSize:        12,
		IsActive:        true,
	}))

	r := newTestRouter()
	rr := do(r, tenant, "GET", "/api/v1/counting/lookup?barcode=4006381333931&check_inventory=true", nil)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	matches := data["inventory_matches"].([]interface{})
	require.Len(t, matches, 1)
	assert.Equal(t, "Stocked Lager", matches[0].(map[string]interface{})["name"])
}

func TestLookupBatch_MixedValidity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-lookup-batch")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/lookup/batch", map[string]interface{}{
		"barcodes": []string{"4006381333931", "12345"},
	})

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	assert.Equal(t, float64(2), data["total_requested"])
	assert.Len(t, data["results"].([]interface{}), 1)
	assert.Len(t, data["errors"].([]interface{}), 1)
}

func TestLookupBatch_EmptyBody(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-lookup-batch-empty")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/lookup/batch", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", rr.Body.String())
}
