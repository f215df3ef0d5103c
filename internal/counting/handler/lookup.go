package handler

import (
	"net/http"

	"github.com/tapline/tapline-backend/internal/counting/service"
	"github.com/tapline/tapline-backend/pkg/errors"
	"github.com/tapline/tapline-backend/pkg/httputil"
	"github.com/tapline/tapline-backend/pkg/logger"
)

// LookupHandler handles barcode lookup endpoints
type LookupHandler struct {
	service *service.LookupService
	logger  *logger.Logger
}

// NewLookupHandler creates a new lookup handler
func NewLookupHandler(svc *service.LookupService, log *logger.Logger) *LookupHandler {
	return &LookupHandler{
		service: svc,
		logger:  log,
	}
}

// Lookup resolves a single barcode from query parameters
func (h *LookupHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("barcode")
	if code == "" {
		httputil.Error(w, errors.BadRequest("barcode query parameter is required"))
		return
	}
	if len(code) > 64 {
		httputil.Error(w, errors.BadRequest("barcode too long"))
		return
	}

	opts := service.LookupOptions{
		CheckInventory:      queryFlag(r, "check_inventory"),
		IncludeAlternatives: queryFlag(r, "include_alternatives"),
		EnrichProduct:       queryFlag(r, "enrich"),
	}

	result, err := h.service.Lookup(r.Context(), code, opts)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

type batchLookupRequest struct {
	Barcodes            []string `json:"barcodes" validate:"required"`
	CheckInventory      bool     `json:"check_inventory"`
	IncludeAlternatives bool     `json:"include_alternatives"`
	EnrichProduct       bool     `json:"enrich"`
}

// LookupBatch resolves up to 50 barcodes in one request
func (h *LookupHandler) LookupBatch(w http.ResponseWriter, r *http.Request) {
	var req batchLookupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.LookupBatch(r.Context(), req.Barcodes, service.LookupOptions{
		CheckInventory:      req.CheckInventory,
		IncludeAlternatives: req.IncludeAlternatives,
		EnrichProduct:       req.EnrichProduct,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

func queryFlag(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "true" || v == "1"
}
