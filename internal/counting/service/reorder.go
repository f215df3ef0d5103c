package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/pkg/logger"
)

// ReorderSuggestion is one ranked restocking recommendation
type ReorderSuggestion struct {
	ItemID            string  `json:"item_id"`
	Name              string  `json:"name"`
	Barcode           *string `json:"barcode,omitempty"`
	VendorID          *string `json:"vendor_id,omitempty"`
	CurrentQuantity   int     `json:"current_quantity"`
	ParLow            int     `json:"par_level_low"`
	ParHigh           int     `json:"par_level_high"`
	SuggestedQuantity int     `json:"suggested_quantity"`
	Urgency           int     `json:"urgency"`
	UnitCostCents     int64   `json:"unit_cost_cents"`
	LineCostCents     int64   `json:"line_cost_cents"`
}

// SuggestedQuantity computes the restocking quantity: refill to par high,
// never below the vendor minimum, rounded up to whole cases.
func SuggestedQuantity(current, parHigh, minOrderQty, caseSize int) int {
	base := parHigh - current
	if base < minOrderQty {
		base = minOrderQty
	}
	if caseSize < 1 {
		caseSize = 1
	}
	cases := (base + caseSize - 1) / caseSize
	return cases * caseSize
}

// UrgencyScore ranks how critically an item needs reordering, 1 (routine)
// to 5 (out of stock).
func UrgencyScore(current, parLow int) int {
	switch {
	case current <= 0:
		return 5
	case float64(current) <= float64(parLow)*0.5:
		return 4
	case float64(current) <= float64(parLow)*0.75:
		return 3
	case current <= parLow:
		return 2
	default:
		return 1
	}
}

// BuildReorderSuggestions turns below-par items into ranked suggestions,
// urgency descending, then line cost descending. The sort is stable so
// identical inputs always produce identical output order.
func BuildReorderSuggestions(items []*repository.InventoryItem) []ReorderSuggestion {
	suggestions := make([]ReorderSuggestion, 0, len(items))

	for _, item := range items {
		qty := SuggestedQuantity(item.CurrentQuantity, item.ParHigh, item.MinOrderQty, item.CaseSize)
		s := ReorderSuggestion{
			ItemID:            item.ID,
			Name:              item.Name,
			Barcode:           item.Barcode,
			VendorID:          item.VendorID,
			CurrentQuantity:   item.CurrentQuantity,
			ParLow:            item.ParLow,
			ParHigh:           item.ParHigh,
			SuggestedQuantity: qty,
			Urgency:           UrgencyScore(item.CurrentQuantity, item.ParLow),
			UnitCostCents:     item.UnitCostCents,
			LineCostCents:     int64(qty) * item.UnitCostCents,
		}
		suggestions = append(suggestions, s)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Urgency != suggestions[j].Urgency {
			return suggestions[i].Urgency > suggestions[j].Urgency
		}
		return suggestions[i].LineCostCents > suggestions[j].LineCostCents
	})

	return suggestions
}

// ReorderService generates reorder suggestions from current stock levels
type ReorderService struct {
	inventoryRepo *repository.InventoryRepository
	logger        *logger.Logger
}

// NewReorderService creates a new reorder service
func NewReorderService(inventoryRepo *repository.InventoryRepository, log *logger.Logger) *ReorderService {
	return &ReorderService{
		inventoryRepo: inventoryRepo,
		logger:        log,
	}
}

// Suggestions lists ranked reorder suggestions for every below-par item
func (s *ReorderService) Suggestions(ctx context.Context) ([]ReorderSuggestion, error) {
	items, err := s.inventoryRepo.ListBelowPar(ctx)
	if err != nil {
		return nil, fmt.Errorf("reorder suggestions: list below par: %w", err)
	}

	return BuildReorderSuggestions(items), nil
}
