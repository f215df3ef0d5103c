package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapline/tapline-backend/internal/counting/repository"
)

func parItem(parLow, parHigh int) *repository.InventoryItem {
	return &repository.InventoryItem{
		ID:      "item-1",
		Name:    "House Lager",
		ParLow:  parLow,
		ParHigh: parHigh,
	}
}

func TestDetectAnomaly(t *testing.T) {
	tests := []struct {
		name        string
		parLow      int
		parHigh     int
		quantity    int
		anomalyType string
		severity    string
		canProceed  bool
		none        bool
	}{
		{name: "zero quantity is out of stock", parLow: 10, parHigh: 40, quantity: 0, anomalyType: AnomalyOutOfStock, severity: SeverityCritical, canProceed: false},
		{name: "negative count is out of stock", parLow: 10, parHigh: 40, quantity: -2, anomalyType: AnomalyOutOfStock, severity: SeverityCritical, canProceed: false},
		{name: "below half par low is critical", parLow: 10, parHigh: 40, quantity: 3, anomalyType: AnomalyCriticalLow, severity: SeverityCritical, canProceed: false},
		{name: "exactly half par low is critical", parLow: 10, parHigh: 40, quantity: 5, anomalyType: AnomalyCriticalLow, severity: SeverityCritical, canProceed: false},
		{name: "at par low is low stock", parLow: 10, parHigh: 40, quantity: 10, anomalyType: AnomalyLowStock, severity: SeverityHigh, canProceed: true},
		{name: "between half and full par low", parLow: 10, parHigh: 40, quantity: 7, anomalyType: AnomalyLowStock, severity: SeverityHigh, canProceed: true},
		{name: "healthy range is no anomaly", parLow: 10, parHigh: 40, quantity: 25, none: true},
		{name: "exactly twice par high is fine", parLow: 10, parHigh: 40, quantity: 80, none: true},
		{name: "above twice par high is overstock", parLow: 10, parHigh: 40, quantity: 81, anomalyType: AnomalyOverstock, severity: SeverityMedium, canProceed: true},
		{name: "odd par low rounds via float", parLow: 9, parHigh: 40, quantity: 4, anomalyType: AnomalyCriticalLow, severity: SeverityCritical, canProceed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anomaly := DetectAnomaly(parItem(tt.parLow, tt.parHigh), tt.quantity)

			if tt.none {
				assert.Nil(t, anomaly)
				return
			}

			require.NotNil(t, anomaly)
			assert.Equal(t, tt.anomalyType, anomaly.AnomalyType)
			assert.Equal(t, tt.severity, anomaly.Severity)
			assert.Equal(t, tt.canProceed, anomaly.CanProceed)
			assert.NotEmpty(t, anomaly.Message)
			assert.Equal(t, tt.quantity, anomaly.Quantity)
		})
	}
}

func TestDetectAnomaly_OnlyCriticalBlocks(t *testing.T) {
	item := parItem(10, 40)

	for qty := -5; qty <= 100; qty++ {
		anomaly := DetectAnomaly(item, qty)
		if anomaly == nil {
			continue
		}
		blocking := anomaly.AnomalyType == AnomalyOutOfStock || anomaly.AnomalyType == AnomalyCriticalLow
		assert.Equal(t, !blocking, anomaly.CanProceed, "quantity %d", qty)
	}
}
