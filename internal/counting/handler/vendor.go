package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tapline/tapline-backend/internal/counting/service"
	"github.com/tapline/tapline-backend/pkg/errors"
	"github.com/tapline/tapline-backend/pkg/httputil"
	"github.com/tapline/tapline-backend/pkg/logger"
)

// VendorHandler serves vendor performance endpoints
type VendorHandler struct {
	service *service.VendorRatingService
	logger  *logger.Logger
}

// NewVendorHandler creates a new vendor handler
func NewVendorHandler(svc *service.VendorRatingService, log *logger.Logger) *VendorHandler {
	return &VendorHandler{
		service: svc,
		logger:  log,
	}
}

// Rating returns a vendor's performance rating with the component breakdown
func (h *VendorHandler) Rating(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")
	if vendorID == "" {
		httputil.Error(w, errors.BadRequest("vendor id is required"))
		return
	}

	rating, err := h.service.Rating(r.Context(), vendorID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rating)
}
