package service

import (
	"fmt"

	"github.com/tapline/tapline-backend/internal/counting/repository"
)

// Anomaly types
const (
	AnomalyOutOfStock  = "out_of_stock"
	AnomalyCriticalLow = "critical_low"
	AnomalyLowStock    = "low_stock"
	AnomalyOverstock   = "overstock"
)

// Anomaly severities
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// Thresholds relative to par levels
const (
	criticalLowFactor = 0.5
	overstockFactor   = 2.0
)

// Anomaly is a stock level classification against an item's par levels.
// CanProceed is false only for blocking anomalies; everything else is
// an advisory warning.
type Anomaly struct {
	ItemID      string `json:"item_id"`
	ItemName    string `json:"item_name"`
	Barcode     string `json:"barcode,omitempty"`
	AnomalyType string `json:"anomaly_type"`
	Severity    string `json:"severity"`
	Quantity    int    `json:"quantity"`
	ParLow      int    `json:"par_level_low"`
	ParHigh     int    `json:"par_level_high"`
	CanProceed  bool   `json:"can_proceed"`
	Message     string `json:"message"`
}

// DetectAnomaly classifies a quantity against an item's par levels.
// Returns nil when the quantity is unremarkable.
func DetectAnomaly(item *repository.InventoryItem, quantity int) *Anomaly {
	a := &Anomaly{
		ItemID:   item.ID,
		ItemName: item.Name,
		Quantity: quantity,
		ParLow:   item.ParLow,
		ParHigh:  item.ParHigh,
	}
	if item.Barcode != nil {
		a.Barcode = *item.Barcode
	}

	switch {
	case quantity <= 0:
		a.AnomalyType = AnomalyOutOfStock
		a.Severity = SeverityCritical
		a.CanProceed = false
		a.Message = fmt.Sprintf("%s is out of stock", item.Name)
	case float64(quantity) <= float64(item.ParLow)*criticalLowFactor:
		a.AnomalyType = AnomalyCriticalLow
		a.Severity = SeverityCritical
		a.CanProceed = false
		a.Message = fmt.Sprintf("%s is critically low: %d on hand, par level %d", item.Name, quantity, item.ParLow)
	case quantity <= item.ParLow:
		a.AnomalyType = AnomalyLowStock
		a.Severity = SeverityHigh
		a.CanProceed = true
		a.Message = fmt.Sprintf("%s is below par level: %d on hand, par level %d", item.Name, quantity, item.ParLow)
	case float64(quantity) > float64(item.ParHigh)*overstockFactor:
		a.AnomalyType = AnomalyOverstock
		a.Severity = SeverityMedium
		a.CanProceed = true
		a.Message = fmt.Sprintf("%s is overstocked: %d on hand, par level high %d", item.Name, quantity, item.ParHigh)
	default:
		return nil
	}

	return a
}
