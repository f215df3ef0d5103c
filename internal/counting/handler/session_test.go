package handler_test

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapline/tapline-backend/internal/counting/handler"
	"github.com/tapline/tapline-backend/internal/counting/registry"
	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/internal/counting/service"
	"github.com/tapline/tapline-backend/pkg/httputil"
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

// newTestRouter builds the counting route tree the way the service binary
// mounts it, minus the transport middleware that needs a real gateway.
func newTestRouter() chi.Router {
	catalogRepo := repository.NewCatalogRepository(suite.DB)
	inventoryRepo := repository.NewInventoryRepository(suite.DB)
	sessionRepo := repository.NewSessionRepository(suite.DB)
	vendorRepo := repository.NewVendorRepository(suite.DB)

	lookupService := service.NewLookupService(catalogRepo, inventoryRepo, registry.NewChain(suite.Logger), nil, suite.Logger)
	sessionService := service.NewSessionService(sessionRepo, inventoryRepo, lookupService, nil, suite.Logger)
	reorderService := service.NewReorderService(inventoryRepo, suite.Logger)
	ratingService := service.NewVendorRatingService(vendorRepo, suite.Logger)

	lookupHandler := handler.NewLookupHandler(lookupService, suite.Logger)
	sessionHandler := handler.NewSessionHandler(sessionService, suite.Logger)
	reorderHandler := handler.NewReorderHandler(reorderService, suite.Logger)
	vendorHandler := handler.NewVendorHandler(ratingService, suite.Logger)

	r := chi.NewRouter()
	r.Use(httputil.TenantMiddleware)
	r.Use(httputil.IdentityMiddleware)

	r.Route("/api/v1/counting", func(r chi.Router) {
		r.With(httputil.RequirePermission("counting.read")).Get("/lookup", lookupHandler.Lookup)
		r.With(httputil.RequirePermission("counting.read")).Post("/lookup/batch", lookupHandler.LookupBatch)

		r.With(httputil.RequirePermission("counting.scan")).Post("/sessions", sessionHandler.Dispatch)
		r.With(httputil.RequirePermission("counting.read")).Get("/sessions", sessionHandler.Get)

		r.With(httputil.RequirePermission("counting.read")).Get("/reorder/suggestions", reorderHandler.Suggestions)
		r.With(httputil.RequirePermission("counting.read")).Get("/vendors/{id}/rating", vendorHandler.Rating)
	})

	return r
}

// do sends a request with tenant and permission headers and returns the
// recorded response.
func do(r chi.Router, tenant *testutil.TestTenant, method, path string, body interface{}) *httptest.ResponseRecorder {
	req := testutil.NewHTTPRequest(method, path, body)
	req = testutil.WithTenantHeaders(req, tenant.ID, tenant.Slug, tenant.SchemaName)
	req = testutil.WithUserHeaders(req, "11111111-2222-3333-4444-555555555555", "staff@example.com")
	req = testutil.WithPermissionHeaders(req, "counting.*")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return data
}

func strPtr(s string) *string {
	return &s
}

func TestSessionDispatch_StartSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-start")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":     "start_session",
		"workflow_type": "inventory_count",
	})

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	session := data["session"].(map[string]interface{})
	assert.Equal(t, "active", session["status"])
	assert.NotEmpty(t, session["session_id"])
	assert.NotEmpty(t, data["instructions"])
}

func TestSessionDispatch_MissingWorkflowType(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-start-missing")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation": "start_session",
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", rr.Body.String())
}

func TestSessionDispatch_UnknownOperation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-unknown-op")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation": "teleport_stock",
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", rr.Body.String())
}

func TestSessionDispatch_ScanRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-scan")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":     "start_session",
		"workflow_type": "inventory_count",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	sessionID := decodeData(t, rr)["session"].(map[string]interface{})["session_id"].(string)

	rr = do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":  "scan",
		"session_id": sessionID,
		"barcode":    "4006381333931",
		"quantity":   3,
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	data := decodeData(t, rr)
	scanResult := data["scan_result"].(map[string]interface{})
	assert.Equal(t, "added_new", scanResult["action"])
	assert.Nil(t, scanResult["error"])

	summary := data["session_summary"].(map[string]interface{})
	assert.Equal(t, float64(3), summary["total_quantity"])
}

func TestSessionDispatch_ScanInvalidSessionIsSoft(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-scan-soft")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":  "scan",
		"session_id": "00000000-0000-0000-0000-000000000000",
		"barcode":    "4006381333931",
		"quantity":   1,
	})

	// Contract: an invalid session is not a transport error
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	scanResult := decodeData(t, rr)["scan_result"].(map[string]interface{})
	scanErr := scanResult["error"].(map[string]interface{})
	assert.Equal(t, "invalid_session", scanErr["code"])
}

func TestSessionDispatch_ScanMissingBarcode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-scan-nobarcode")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":  "scan",
		"session_id": "00000000-0000-0000-0000-000000000000",
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", rr.Body.String())
}

func TestSessionDispatch_BatchScan(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-batch")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":     "batch_scan",
		"workflow_type": "stock_take",
		"location_id":   "11111111-1111-1111-1111-111111111111",
		"batch_data": []map[string]interface{}{
			{"barcode": "4006381333931", "quantity": 2},
			{"barcode": "bogus", "quantity": 1},
			{"barcode": "036000291452", "quantity": 4},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	data := decodeData(t, rr)
	assert.NotEmpty(t, data["session_id"])

	batchSummary := data["batch_summary"].(map[string]interface{})
	assert.Equal(t, float64(3), batchSummary["total_entries"])
	assert.Equal(t, float64(2), batchSummary["successful_scans"])
	assert.Equal(t, float64(1), batchSummary["errors"])
}

func TestSessionDispatch_UpdateQuantityAbsentItem(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-update-absent")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":     "start_session",
		"workflow_type": "inventory_count",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	sessionID := decodeData(t, rr)["session"].(map[string]interface{})["session_id"].(string)

	// Never scanned in this session
	rr = do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":  "update_quantity",
		"session_id": sessionID,
		"barcode":    "4006381333931",
		"quantity":   5,
	})

	assert.Equal(t, http.StatusNotFound, rr.Code, "body: %s", rr.Body.String())
}

func TestSessionDispatch_CompleteAndCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-complete")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":     "start_session",
		"workflow_type": "inventory_count",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	sessionID := decodeData(t, rr)["session"].(map[string]interface{})["session_id"].(string)

	rr = do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":  "scan",
		"session_id": sessionID,
		"barcode":    "4006381333931",
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":  "complete_session",
		"session_id": sessionID,
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	data := decodeData(t, rr)
	summary := data["session_summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["items_scanned"])

	// Completed sessions are terminal
	rr = do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":  "cancel_session",
		"session_id": sessionID,
	})
	assert.Equal(t, http.StatusConflict, rr.Code, "body: %s", rr.Body.String())
}

func TestSessionGet_SingleAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-get")
	r := newTestRouter()

	rr := do(r, tenant, "POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":     "start_session",
		"workflow_type": "quick_update",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	sessionID := decodeData(t, rr)["session"].(map[string]interface{})["session_id"].(string)

	rr = do(r, tenant, "GET", "/api/v1/counting/sessions?session_id="+sessionID, nil)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	data := decodeData(t, rr)
	assert.Equal(t, sessionID, data["session"].(map[string]interface{})["session_id"])

	rr = do(r, tenant, "GET", "/api/v1/counting/sessions?workflow_type=quick_update", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data = decodeData(t, rr)
	assert.Equal(t, float64(1), data["total_sessions"])
}

func TestSessions_PermissionRequired(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupCountingTenant(t, ctx, "h-perms")
	r := newTestRouter()

	req := testutil.NewHTTPRequest("POST", "/api/v1/counting/sessions", map[string]interface{}{
		"operation":     "start_session",
		"workflow_type": "inventory_count",
	})
	req = testutil.WithTenantHeaders(req, tenant.ID, tenant.Slug, tenant.SchemaName)
	req = testutil.WithUserHeaders(req, "11111111-2222-3333-4444-555555555555", "staff@example.com")
	req = testutil.WithPermissionHeaders(req, "counting.read") // read only, no scan

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code, "body: %s", rr.Body.String())
}

func TestSessions_MissingTenantContext(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	r := newTestRouter()

	req := testutil.NewHTTPRequest("GET", "/api/v1/counting/sessions", nil)
	req = testutil.WithPermissionHeaders(req, "counting.*")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}
