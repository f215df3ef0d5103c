package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapline/tapline-backend/internal/counting/repository"
)

func TestReorderSuggestions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-reorder")
	tenantCtx := suite.TenantContext(tenant)

	inventoryRepo := repository.NewInventoryRepository(suite.DB)
	require.NoError(t, inventoryRepo.Create(tenantCtx, &repository.InventoryItem{
		Barcode:         strPtr("4006381333931"),
		Name:            "Depleted Stout",
		CurrentQuantity: 2,
		ParLow:          10,
		ParHigh:         40,
		MinOrderQty:     6,
		CaseSize:        12,
		UnitCostCents:   1500,
		IsActive:        true,
	}))
	require.NoError(t, inventoryRepo.Create(tenantCtx, &repository.InventoryItem{
		Barcode:         strPtr("036000291452"),
		Name:            "Healthy Pilsner",
		CurrentQuantity: 30,
		ParLow:          10,
		ParHigh:         40,
		MinOrderQty:     6,
		CaseSize:        12,
		UnitCostCents:   1500,
		IsActive:        true,
	}))

	r := newTestRouter()
	rr := do(r, tenant, "GET", "/api/v1/counting/reorder/suggestions", nil)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	assert.Equal(t, float64(1), data["total_suggestions"])

	suggestions := data["suggestions"].([]interface{})
	require.Len(t, suggestions, 1)
	first := suggestions[0].(map[string]interface{})
	assert.Equal(t, "Depleted Stout", first["name"])
	// need 38 to reach par high, rounded up to four cases of 12
	assert.Equal(t, float64(48), first["suggested_quantity"])
	assert.Equal(t, float64(48*1500), data["total_cost_cents"])
}

func TestReorderSuggestions_Empty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-reorder-empty")

	r := newTestRouter()
	rr := do(r, tenant, "GET", "/api/v1/counting/reorder/suggestions", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeData(t, rr)
	assert.Equal(t, float64(0), data["total_suggestions"])
}

func TestVendorRating(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-vendor")
	tenantCtx := suite.TenantContext(tenant)

	vendorRepo := repository.NewVendorRepository(suite.DB)
	vendor := &repository.Vendor{
		Name:                   "Harbor Distribution",
		ContractedDeliveryDays: 7,
	}
	require.NoError(t, vendorRepo.Create(tenantCtx, vendor))

	ordered := time.Now().AddDate(0, 0, -30)
	delivered := ordered.AddDate(0, 0, 3)
	require.NoError(t, vendorRepo.CreateOrder(tenantCtx, &repository.VendorOrder{
		VendorID:    vendor.ID,
		Status:      "completed",
		OrderedAt:   ordered,
		DeliveredAt: &delivered,
		TotalCents:  50000,
	}))

	r := newTestRouter()
	rr := do(r, tenant, "GET", "/api/v1/counting/vendors/"+vendor.ID+"/rating", nil)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	assert.Equal(t, vendor.ID, data["vendor_id"])
	assert.Equal(t, "Harbor Distribution", data["vendor_name"])

	rating := data["rating"].(float64)
	assert.GreaterOrEqual(t, rating, 1.0)
	assert.LessOrEqual(t, rating, 5.0)
	assert.NotNil(t, data["components"])
}

func TestVendorRating_UnknownVendor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-vendor-nf")

	r := newTestRouter()
	rr := do(r, tenant, "GET", "/api/v1/counting/vendors/00000000-0000-0000-0000-000000000000/rating", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code, "body: %s", rr.Body.String())
}
