package handler

import (
	"net/http"

	"github.com/tapline/tapline-backend/internal/counting/service"
	"github.com/tapline/tapline-backend/pkg/httputil"
	"github.com/tapline/tapline-backend/pkg/logger"
)

// ReorderHandler serves reorder suggestion endpoints
type ReorderHandler struct {
	service *service.ReorderService
	logger  *logger.Logger
}

// NewReorderHandler creates a new reorder handler
func NewReorderHandler(svc *service.ReorderService, log *logger.Logger) *ReorderHandler {
	return &ReorderHandler{
		service: svc,
		logger:  log,
	}
}

// Suggestions lists reorder suggestions for all below-par items, most
// urgent first.
func (h *ReorderHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.service.Suggestions(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var totalCost int64
	for _, s := range suggestions {
		totalCost += s.LineCostCents
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"suggestions":       suggestions,
		"total_suggestions": len(suggestions),
		"total_cost_cents":  totalCost,
	})
}
